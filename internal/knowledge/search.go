package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
)

// embedTimeout bounds the embedding provider call per search.
const embedTimeout = 30 * time.Second

// maxQueryLen caps search query length before embedding.
const maxQueryLen = 2000

// Retriever performs hybrid search over a tenant's knowledge corpora.
//
// A candidate qualifies when its cosine similarity exceeds the floor OR its
// lexical index matches the normalized query; qualifying rows are ordered
// by the blended score
//
//	semanticWeight*semantic + keywordWeight*min(1, ts_rank*keywordScale)
//
// with ties broken by most recent update. Embedding provider failures
// propagate as retrieval failures; there is no stale fallback.
//
// Retriever is safe for concurrent use by multiple goroutines.
type Retriever struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	cfg      config.Retrieval
	logger   *slog.Logger
}

// NewRetriever creates a hybrid retriever.
func NewRetriever(pool *pgxpool.Pool, embedder ai.Embedder, cfg config.Retrieval, logger *slog.Logger) (*Retriever, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{pool: pool, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// DefaultLimit returns the configured result limit for a corpus.
func (r *Retriever) DefaultLimit(corpus Corpus) int {
	if corpus == CorpusFaq {
		return r.cfg.FaqLimit
	}
	return r.cfg.ProductLimit
}

// embed generates the query embedding, truncated to the schema dimension.
func (r *Retriever) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := config.VectorDimension
	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Search returns up to limit items from the tenant's corpus ranked by
// hybrid score. limit <= 0 uses the corpus default. A corpus excluded by
// f.SourceTypes returns no results without an embedding call.
func (r *Retriever) Search(ctx context.Context, storeID uuid.UUID, corpus Corpus, query string, limit int, f Filters) ([]Result, error) {
	if !corpus.Valid() {
		return nil, fmt.Errorf("invalid corpus: %q", corpus)
	}
	if query == "" {
		return []Result{}, nil
	}

	// Excluded corpus: short-circuit before touching the embedder.
	if !f.Allows(corpus) {
		return []Result{}, nil
	}

	if limit <= 0 {
		limit = r.DefaultLimit(corpus)
	}
	if limit > r.cfg.MaxLimit {
		limit = r.cfg.MaxLimit
	}
	if len(query) > maxQueryLen {
		query = query[:maxQueryLen]
	}

	floor := f.MinSimilarity
	if floor <= 0 {
		floor = r.cfg.DefaultMinSimilarity
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vec, err := r.embed(embedCtx, query)
	if err != nil {
		return nil, err
	}

	tsQuery := NormalizeQuery(query)

	var results []Result
	switch corpus {
	case CorpusProduct:
		results, err = r.searchProducts(ctx, storeID, vec, tsQuery, floor, limit)
	case CorpusFaq:
		results, err = r.searchFaqs(ctx, storeID, vec, tsQuery, floor, limit, f.Categories)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("hybrid search",
		"corpus", corpus, "store_id", storeID,
		"results", len(results), "floor", floor)
	return results, nil
}

func (r *Retriever) searchProducts(ctx context.Context, storeID uuid.UUID, vec pgvector.Vector, tsQuery string, floor float64, limit int) ([]Result, error) {
	// An empty normalized query disables the lexical leg: to_tsquery
	// rejects empty input, and there is nothing to rescue with.
	sql := `
		SELECT id, store_id, name, description, price, url, updated_at,
		       semantic, keyword,
		       ($5 * semantic + $6 * keyword) AS relevance
		FROM (
		  SELECT id, store_id, name, description, price, url, updated_at,
		         1 - (embedding <=> $1) AS semantic,
		         LEAST(1.0, COALESCE(ts_rank(search_text, to_tsquery('simple', $2)), 0) * $3) AS keyword,
		         search_text @@ to_tsquery('simple', $2) AS lexical_hit
		  FROM products
		  WHERE store_id = $4 AND embedding IS NOT NULL
		) c
		WHERE semantic > $7 OR lexical_hit
		ORDER BY relevance DESC, updated_at DESC
		LIMIT $8`
	args := []any{vec, tsQuery, r.cfg.KeywordScale, storeID,
		r.cfg.SemanticWeight, r.cfg.KeywordWeight, floor, limit}

	if tsQuery == "" {
		sql = `
		SELECT id, store_id, name, description, price, url, updated_at,
		       semantic, 0::float8 AS keyword,
		       ($2 * semantic) AS relevance
		FROM (
		  SELECT id, store_id, name, description, price, url, updated_at,
		         1 - (embedding <=> $1) AS semantic
		  FROM products
		  WHERE store_id = $3 AND embedding IS NOT NULL
		) c
		WHERE semantic > $4
		ORDER BY relevance DESC, updated_at DESC
		LIMIT $5`
		args = []any{vec, r.cfg.SemanticWeight, storeID, floor, limit}
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		res := Result{Item: Item{Corpus: CorpusProduct}}
		if err := rows.Scan(
			&res.Item.ID, &res.Item.StoreID, &res.Item.Title, &res.Item.Body,
			&res.Item.Price, &res.Item.URL, &res.Item.UpdatedAt,
			&res.Semantic, &res.Keyword, &res.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning product result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product results: %w", err)
	}
	return results, nil
}

func (r *Retriever) searchFaqs(ctx context.Context, storeID uuid.UUID, vec pgvector.Vector, tsQuery string, floor float64, limit int, categories []string) ([]Result, error) {
	if categories == nil {
		categories = []string{}
	}

	sql := `
		SELECT id, store_id, question, answer, category, updated_at,
		       semantic, keyword,
		       ($5 * semantic + $6 * keyword) AS relevance
		FROM (
		  SELECT id, store_id, question, answer, category, updated_at,
		         1 - (embedding <=> $1) AS semantic,
		         LEAST(1.0, COALESCE(ts_rank(search_text, to_tsquery('simple', $2)), 0) * $3) AS keyword,
		         search_text @@ to_tsquery('simple', $2) AS lexical_hit
		  FROM faq_entries
		  WHERE store_id = $4 AND embedding IS NOT NULL
		    AND (cardinality($9::text[]) = 0 OR category = ANY($9::text[]))
		) c
		WHERE semantic > $7 OR lexical_hit
		ORDER BY relevance DESC, updated_at DESC
		LIMIT $8`
	args := []any{vec, tsQuery, r.cfg.KeywordScale, storeID,
		r.cfg.SemanticWeight, r.cfg.KeywordWeight, floor, limit, categories}

	if tsQuery == "" {
		sql = `
		SELECT id, store_id, question, answer, category, updated_at,
		       semantic, 0::float8 AS keyword,
		       ($2 * semantic) AS relevance
		FROM (
		  SELECT id, store_id, question, answer, category, updated_at,
		         1 - (embedding <=> $1) AS semantic
		  FROM faq_entries
		  WHERE store_id = $3 AND embedding IS NOT NULL
		    AND (cardinality($6::text[]) = 0 OR category = ANY($6::text[]))
		) c
		WHERE semantic > $4
		ORDER BY relevance DESC, updated_at DESC
		LIMIT $5`
		args = []any{vec, r.cfg.SemanticWeight, storeID, floor, limit, categories}
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching faq entries: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		res := Result{Item: Item{Corpus: CorpusFaq}}
		if err := rows.Scan(
			&res.Item.ID, &res.Item.StoreID, &res.Item.Title, &res.Item.Body,
			&res.Item.Category, &res.Item.UpdatedAt,
			&res.Semantic, &res.Keyword, &res.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning faq result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating faq results: %w", err)
	}
	return results, nil
}
