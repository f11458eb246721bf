// Package tenant provides read access to store (tenant) records.
//
// Stores are administered by the dashboard and billing services; this core
// only reads them to scope retrieval, build prompts, and resolve quotas.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested store does not exist.
var ErrNotFound = errors.New("store not found")

// Store is a single tenant: one storefront with its own knowledge base,
// sessions, and quota. Every other entity in the system belongs to exactly
// one Store.
type Store struct {
	ID                 uuid.UUID
	Name               string
	Domain             string
	APIKey             string
	CustomInstructions string

	// PlanMonthlyLimit is the monthly message quota from the billing
	// collaborator. nil means the plan did not specify one and the
	// configured free-tier limit applies.
	PlanMonthlyLimit *int

	ProductCount int
	FaqCount     int

	CreatedAt time.Time
	UpdatedAt time.Time
}

const storeCols = `id, name, domain, api_key, custom_instructions,
	plan_monthly_limit, product_count, faq_count, created_at, updated_at`

// Repo reads store records from PostgreSQL.
//
// Repo is safe for concurrent use by multiple goroutines.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo creates a store repository.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetByID fetches a store by ID. Returns ErrNotFound if it does not exist.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*Store, error) {
	return r.get(ctx, `SELECT `+storeCols+` FROM stores WHERE id = $1`, id)
}

// GetByAPIKey fetches a store by its widget API credential.
// Returns ErrNotFound if no store holds the key.
func (r *Repo) GetByAPIKey(ctx context.Context, apiKey string) (*Store, error) {
	return r.get(ctx, `SELECT `+storeCols+` FROM stores WHERE api_key = $1`, apiKey)
}

func (r *Repo) get(ctx context.Context, sql string, arg any) (*Store, error) {
	var s Store
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&s.ID, &s.Name, &s.Domain, &s.APIKey, &s.CustomInstructions,
		&s.PlanMonthlyLimit, &s.ProductCount, &s.FaqCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("querying store: %w", err)
	}
	return &s, nil
}
