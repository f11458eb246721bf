// Package knowledge stores tenant knowledge items (products and FAQ
// entries) and retrieves them with hybrid vector + lexical search.
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Corpus identifies which knowledge collection a search targets.
type Corpus string

const (
	CorpusProduct Corpus = "product"
	CorpusFaq     Corpus = "faq"
)

// Valid reports whether c is a known corpus.
func (c Corpus) Valid() bool {
	return c == CorpusProduct || c == CorpusFaq
}

// Item is one knowledge entry. For products, Title/Body are name and
// description; for FAQ entries they are question and answer. Category and
// Price/URL are populated only for their respective corpus.
type Item struct {
	ID       uuid.UUID
	StoreID  uuid.UUID
	Corpus   Corpus
	Title    string
	Body     string
	Category string
	Price    string
	URL      string

	UpdatedAt time.Time
}

// Result pairs an item with its retrieval scores.
type Result struct {
	Item Item

	// Score is the blended hybrid score results are ordered by.
	Score float64
	// Semantic is cosine similarity of the item and query embeddings.
	Semantic float64
	// Keyword is the scaled, capped lexical rank.
	Keyword float64
}

// Filters constrains a search. The zero value allows both corpora with the
// retriever's default similarity floor.
type Filters struct {
	// SourceTypes lists the corpora eligible this turn. Empty means all.
	// A search against an excluded corpus returns no results without
	// calling the embedding provider.
	SourceTypes []Corpus

	// Categories restricts FAQ entries to the given category tags.
	// Ignored for the product corpus. Empty means no restriction.
	Categories []string

	// MinSimilarity overrides the default semantic floor when > 0.
	MinSimilarity float64
}

// Allows reports whether the filter permits searching the given corpus.
func (f Filters) Allows(c Corpus) bool {
	if len(f.SourceTypes) == 0 {
		return true
	}
	for _, st := range f.SourceTypes {
		if st == c {
			return true
		}
	}
	return false
}
