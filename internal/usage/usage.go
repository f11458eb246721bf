// Package usage enforces per-tenant monthly message quotas.
//
// Counters are keyed by (store, calendar month) and bumped with a single
// increment-on-conflict upsert. That upsert is the only point where
// concurrent turns for one tenant contend, and the database resolves it;
// there is no application-level locking.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Snapshot is the usage state returned by an admission check.
type Snapshot struct {
	Allowed bool   `json:"allowed"`
	Used    int    `json:"used"`
	Limit   int    `json:"limit"`
	Month   string `json:"month"`
}

// Gate reads and increments usage counters.
//
// Gate is safe for concurrent use by multiple goroutines.
type Gate struct {
	pool *pgxpool.Pool
	now  func() time.Time // injectable for tests
}

// NewGate creates a usage gate.
func NewGate(pool *pgxpool.Pool) *Gate {
	return &Gate{pool: pool, now: time.Now}
}

// MonthKey formats t's calendar month as the counter key, e.g. "2026-08".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Check reports whether a tenant may send another message this month.
// limit is the plan's monthly message allowance.
//
// Check does not reserve capacity: the counter is only bumped by Increment
// after a turn completes, so a burst of concurrent turns near the limit may
// briefly overshoot. That is acceptable for quota enforcement.
func (g *Gate) Check(ctx context.Context, storeID uuid.UUID, limit int) (Snapshot, error) {
	month := MonthKey(g.now())

	var used int
	err := g.pool.QueryRow(ctx,
		`SELECT message_count FROM usage_counters WHERE store_id = $1 AND month = $2`,
		storeID, month,
	).Scan(&used)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		used = 0
	case err != nil:
		return Snapshot{}, fmt.Errorf("reading usage counter: %w", err)
	}

	return Snapshot{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
		Month:   month,
	}, nil
}

// Increment atomically bumps the tenant's counter for the current month.
func (g *Gate) Increment(ctx context.Context, storeID uuid.UUID) error {
	month := MonthKey(g.now())

	_, err := g.pool.Exec(ctx,
		`INSERT INTO usage_counters (store_id, month, message_count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (store_id, month)
		 DO UPDATE SET message_count = usage_counters.message_count + 1,
		               updated_at = now()`,
		storeID, month,
	)
	if err != nil {
		return fmt.Errorf("incrementing usage counter: %w", err)
	}
	return nil
}
