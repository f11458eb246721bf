package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryType classifies which searches of a turn came back empty.
type QueryType string

const (
	QueryTypeProduct QueryType = "product"
	QueryTypeFaq     QueryType = "faq"
	QueryTypeBoth    QueryType = "both"
)

// ClassifyEmpty maps which corpora returned nothing to a QueryType.
// At least one of the two must be true; callers only record missing demand
// when a search actually came back empty.
func ClassifyEmpty(productEmpty, faqEmpty bool) QueryType {
	switch {
	case productEmpty && faqEmpty:
		return QueryTypeBoth
	case faqEmpty:
		return QueryTypeFaq
	default:
		return QueryTypeProduct
	}
}

// MissingDemandEntry is a content-gap signal: a customer query that no
// product or FAQ entry satisfied. Written at most once per turn.
type MissingDemandEntry struct {
	StoreID   uuid.UUID
	SessionID uuid.UUID
	Query     string
	QueryType QueryType
	Tools     []string
}

// DemandRecorder persists missing-demand telemetry.
//
// DemandRecorder is safe for concurrent use by multiple goroutines.
type DemandRecorder struct {
	pool *pgxpool.Pool
}

// NewDemandRecorder creates a missing-demand recorder.
func NewDemandRecorder(pool *pgxpool.Pool) *DemandRecorder {
	return &DemandRecorder{pool: pool}
}

// Record inserts one missing-demand entry. Purely additive telemetry;
// failures should be logged by the caller, never fail the turn.
func (d *DemandRecorder) Record(ctx context.Context, e MissingDemandEntry) error {
	if e.Tools == nil {
		e.Tools = []string{}
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO missing_demand (store_id, session_id, query_text, query_type, tools_used)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.StoreID, e.SessionID, e.Query, e.QueryType, e.Tools,
	)
	if err != nil {
		return fmt.Errorf("inserting missing demand entry: %w", err)
	}
	return nil
}
