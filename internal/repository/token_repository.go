package repository

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository holds FCM device tokens. Tokens live in memory for fast
// reads; when a pool is supplied they are also mirrored into the
// device_tokens table so they survive restarts.
type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> platform
	pool   *pgxpool.Pool
}

// NewTokenRepository builds the repository. pool may be nil for memory-only
// operation; when set, previously saved tokens are loaded immediately.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	r := &TokenRepository{
		tokens: make(map[string]string),
		pool:   pool,
	}
	if pool != nil {
		r.load()
	}
	return r
}

func (r *TokenRepository) load() {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `select token, platform from device_tokens`)
	if err != nil {
		log.Printf("Error loading device tokens: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var token, platform string
		if err := rows.Scan(&token, &platform); err != nil {
			continue
		}
		r.tokens[token] = platform
	}
	log.Printf("Loaded %d device tokens", len(r.tokens))
}

// SaveToken registers a device token, overwriting the platform if it was
// already known.
func (r *TokenRepository) SaveToken(token, platform string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	r.tokens[token] = platform
	r.mu.Unlock()

	if r.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `
		insert into device_tokens (token, platform, created_at)
		values ($1, $2, $3)
		on conflict (token) do update set platform = excluded.platform`,
		token, platform, time.Now().UTC())
	if err != nil {
		log.Printf("Error saving device token: %v", err)
	}
}

// RemoveToken drops a token, typically after FCM reports it invalid.
func (r *TokenRepository) RemoveToken(token string) {
	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()

	if r.pool == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()
	if _, err := r.pool.Exec(ctx, `delete from device_tokens where token = $1`, token); err != nil {
		log.Printf("Error removing device token: %v", err)
	}
}

// GetAllTokens returns the registered tokens.
func (r *TokenRepository) GetAllTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tokens))
	for t := range r.tokens {
		out = append(out, t)
	}
	return out
}
