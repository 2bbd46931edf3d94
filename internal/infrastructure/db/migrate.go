package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the minimal tables needed by this app.
// This keeps setup simple (no external migration tool), but still gives persistence.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists trades (
			id text primary key,
			broker_trade_id text not null default '',
			instrument text not null,
			direction text not null,
			strategy text not null,
			entry_price double precision not null,
			entry_time timestamptz not null,
			stop_loss double precision not null,
			take_profit double precision not null,
			risk_distance double precision not null,
			units double precision not null,
			remaining_units double precision not null,
			trigger_bar_high double precision not null default 0,
			trigger_bar_low double precision not null default 0,
			state jsonb not null default '{}',
			realized_pl double precision not null default 0,
			realized_pips double precision not null default 0,
			exit_price double precision,
			exit_time timestamptz,
			close_reason text not null default '',
			updated_at timestamptz not null default now()
		);`,
		`create index if not exists idx_trades_open on trades (instrument) where close_reason = '';`,
		`create table if not exists equity_snapshots (
			id bigserial primary key,
			taken_at timestamptz not null default now(),
			balance double precision not null,
			open_positions int not null default 0
		);`,
		`create table if not exists device_tokens (
			token text primary key,
			platform text not null default '',
			created_at timestamptz not null default now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
