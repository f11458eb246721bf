package intent

import (
	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
	"github.com/woodpecker023/woo-ai-chatbot/internal/knowledge"
)

// Policy constrains retrieval for one intent: which corpora are eligible,
// which FAQ categories apply, and the semantic similarity floor.
//
// An empty SourceTypes set means no retrieval at all for this intent; the
// tool dispatcher must skip the embedding call entirely.
type Policy struct {
	SourceTypes   []knowledge.Corpus
	Categories    []string
	MinSimilarity float64
}

// AllowsRetrieval reports whether any corpus is eligible.
func (p Policy) AllowsRetrieval() bool {
	return len(p.SourceTypes) > 0
}

// Allows reports whether the policy permits the given corpus.
func (p Policy) Allows(c knowledge.Corpus) bool {
	for _, st := range p.SourceTypes {
		if st == c {
			return true
		}
	}
	return false
}

// Filters converts the policy into knowledge search filters.
//
// The empty-set conventions are inverted across the boundary: an empty
// policy means no retrieval, while an empty knowledge.Filters allows every
// corpus. Callers must gate on Allows or AllowsRetrieval before searching;
// a no-retrieval policy converts to the permissive zero filter.
func (p Policy) Filters() knowledge.Filters {
	return knowledge.Filters{
		SourceTypes:   p.SourceTypes,
		Categories:    p.Categories,
		MinSimilarity: p.MinSimilarity,
	}
}

// PolicyFor is the pure intent → search constraints lookup. Floors come
// from configuration; the table only decides which floor applies.
func PolicyFor(i Intent, r config.Retrieval) Policy {
	products := []knowledge.Corpus{knowledge.CorpusProduct}
	faqs := []knowledge.Corpus{knowledge.CorpusFaq}
	both := []knowledge.Corpus{knowledge.CorpusProduct, knowledge.CorpusFaq}

	switch i {
	case IntentBrowsing:
		return Policy{SourceTypes: products, MinSimilarity: r.DefaultMinSimilarity}
	case IntentProductDetail:
		return Policy{SourceTypes: products, MinSimilarity: r.FocusedMinSimilarity}
	case IntentProductComparison:
		return Policy{SourceTypes: products, MinSimilarity: r.FocusedMinSimilarity}
	case IntentShippingReturns:
		return Policy{
			SourceTypes:   faqs,
			Categories:    []string{"shipping", "returns"},
			MinSimilarity: r.FocusedMinSimilarity,
		}
	case IntentPayment:
		return Policy{
			SourceTypes:   faqs,
			Categories:    []string{"payment", "billing"},
			MinSimilarity: r.FocusedMinSimilarity,
		}
	case IntentPolicy:
		return Policy{SourceTypes: faqs, MinSimilarity: r.StrictMinSimilarity}
	case IntentOrderStatus, IntentSmalltalk:
		// No retrieval: an order lookup or a greeting gains nothing
		// from the knowledge base, and skipping saves an embedding call.
		return Policy{}
	default: // general-support and anything coerced to it
		return Policy{SourceTypes: both, MinSimilarity: r.DefaultMinSimilarity}
	}
}
