package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"breakout-backend/internal/domain"
)

const pgTimeout = 5 * time.Second

// machineState is the jsonb blob holding the per-strategy exit machine state.
type machineState struct {
	Standard domain.StandardState `json:"standard"`
	Scaling  domain.ScalingState  `json:"scaling"`
	DPL      domain.DPLState      `json:"dpl"`
}

// PostgresTradeRepository persists positions in the trades table so a server
// restart does not lose track of what is open at the broker.
type PostgresTradeRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTradeRepository(pool *pgxpool.Pool) *PostgresTradeRepository {
	return &PostgresTradeRepository{pool: pool}
}

func (r *PostgresTradeRepository) Create(p *domain.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	state, err := json.Marshal(machineState{Standard: p.Standard, Scaling: p.Scaling, DPL: p.DPL})
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		insert into trades (
			id, broker_trade_id, instrument, direction, strategy,
			entry_price, entry_time, stop_loss, take_profit, risk_distance,
			units, remaining_units, trigger_bar_high, trigger_bar_low, state,
			realized_pl, realized_pips, close_reason, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,'',now())`,
		p.ID, p.BrokerTradeID, p.Instrument, string(p.Direction), string(p.Strategy),
		p.EntryPrice, p.EntryTime, p.StopLoss, p.TakeProfit, p.RiskDistance,
		p.Units, p.RemainingUnits, p.TriggerBarHigh, p.TriggerBarLow, state,
		p.RealizedPL, p.RealizedPips)
	return err
}

func (r *PostgresTradeRepository) Update(p *domain.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	state, err := json.Marshal(machineState{Standard: p.Standard, Scaling: p.Scaling, DPL: p.DPL})
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		update trades set
			broker_trade_id = $2, stop_loss = $3, take_profit = $4,
			units = $5, remaining_units = $6, state = $7,
			realized_pl = $8, realized_pips = $9, updated_at = now()
		where id = $1`,
		p.ID, p.BrokerTradeID, p.StopLoss, p.TakeProfit,
		p.Units, p.RemainingUnits, state, p.RealizedPL, p.RealizedPips)
	return err
}

func (r *PostgresTradeRepository) Close(p *domain.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	var exitTime interface{}
	if !p.ExitTime.IsZero() {
		exitTime = p.ExitTime
	}

	_, err := r.pool.Exec(ctx, `
		update trades set
			remaining_units = 0, realized_pl = $2, realized_pips = $3,
			exit_price = $4, exit_time = $5, close_reason = $6, updated_at = now()
		where id = $1`,
		p.ID, p.RealizedPL, p.RealizedPips, p.ExitPrice, exitTime, p.CloseReason)
	return err
}

const tradeColumns = `
	id, broker_trade_id, instrument, direction, strategy,
	entry_price, entry_time, stop_loss, take_profit, risk_distance,
	units, remaining_units, trigger_bar_high, trigger_bar_low, state,
	realized_pl, realized_pips,
	coalesce(exit_price, 0), exit_time, close_reason`

func scanTrade(row pgx.Row) (*domain.Position, error) {
	var (
		p         domain.Position
		direction string
		strategy  string
		state     []byte
		exitTime  *time.Time
	)
	err := row.Scan(
		&p.ID, &p.BrokerTradeID, &p.Instrument, &direction, &strategy,
		&p.EntryPrice, &p.EntryTime, &p.StopLoss, &p.TakeProfit, &p.RiskDistance,
		&p.Units, &p.RemainingUnits, &p.TriggerBarHigh, &p.TriggerBarLow, &state,
		&p.RealizedPL, &p.RealizedPips,
		&p.ExitPrice, &exitTime, &p.CloseReason)
	if err != nil {
		return nil, err
	}

	p.Direction = domain.Direction(direction)
	p.Strategy = domain.StrategyKind(strategy)
	if exitTime != nil {
		p.ExitTime = *exitTime
	}

	var ms machineState
	if err := json.Unmarshal(state, &ms); err == nil {
		p.Standard = ms.Standard
		p.Scaling = ms.Scaling
		p.DPL = ms.DPL
	}
	return &p, nil
}

func (r *PostgresTradeRepository) query(where string, args ...interface{}) []*domain.Position {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `select `+tradeColumns+` from trades `+where, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanTrade(rows)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *PostgresTradeRepository) Open() []*domain.Position {
	return r.query(`where close_reason = '' order by id`)
}

func (r *PostgresTradeRepository) OpenByInstrument(instrument string) []*domain.Position {
	return r.query(`where close_reason = '' and instrument = $1 order by id`, instrument)
}

func (r *PostgresTradeRepository) Closed() []*domain.Position {
	return r.query(`where close_reason <> '' order by exit_time`)
}

// RecordEquitySnapshot appends a point to the equity history.
func (r *PostgresTradeRepository) RecordEquitySnapshot(balance float64, openPositions int) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`insert into equity_snapshots (balance, open_positions) values ($1, $2)`,
		balance, openPositions)
	return err
}
