package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ProductInput is the writable portion of a product entry.
type ProductInput struct {
	Name        string
	Description string
	Price       string
	URL         string
}

// FaqInput is the writable portion of an FAQ entry.
type FaqInput struct {
	Question string
	Answer   string
	Category string
}

// AddProduct embeds and inserts a product for the tenant, bumping the
// store's product counter. Catalog synchronization proper lives in a
// collaborator service; this write path exists for that collaborator and
// for seeding test fixtures.
func (r *Retriever) AddProduct(ctx context.Context, storeID uuid.UUID, in ProductInput) (uuid.UUID, error) {
	if in.Name == "" {
		return uuid.Nil, fmt.Errorf("product name is required")
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	vec, err := r.embed(embedCtx, in.Name+" "+in.Description)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO products (store_id, name, description, price, url, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		storeID, in.Name, in.Description, in.Price, in.URL, vec,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting product: %w", err)
	}

	if _, err := r.pool.Exec(ctx,
		`UPDATE stores SET product_count = product_count + 1, updated_at = now() WHERE id = $1`,
		storeID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("updating product count: %w", err)
	}

	return id, nil
}

// AddFaq embeds and inserts an FAQ entry for the tenant, bumping the
// store's FAQ counter.
func (r *Retriever) AddFaq(ctx context.Context, storeID uuid.UUID, in FaqInput) (uuid.UUID, error) {
	if in.Question == "" || in.Answer == "" {
		return uuid.Nil, fmt.Errorf("faq question and answer are required")
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	vec, err := r.embed(embedCtx, in.Question+" "+in.Answer)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO faq_entries (store_id, question, answer, category, embedding)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		storeID, in.Question, in.Answer, in.Category, vec,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting faq entry: %w", err)
	}

	if _, err := r.pool.Exec(ctx,
		`UPDATE stores SET faq_count = faq_count + 1, updated_at = now() WHERE id = $1`,
		storeID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("updating faq count: %w", err)
	}

	return id, nil
}
