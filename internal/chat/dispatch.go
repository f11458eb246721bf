package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/woodpecker023/woo-ai-chatbot/internal/intent"
	"github.com/woodpecker023/woo-ai-chatbot/internal/knowledge"
	"github.com/woodpecker023/woo-ai-chatbot/internal/tenant"
)

// knowledgeMarker prefixes retrieved content handed back to the model, so
// answers distinguish verified store data from model recall.
const knowledgeMarker = "Verified knowledge-base data:"

// Searcher is the retrieval dependency of the dispatcher.
// *knowledge.Retriever satisfies it.
type Searcher interface {
	Search(ctx context.Context, storeID uuid.UUID, corpus knowledge.Corpus, query string, limit int, f knowledge.Filters) ([]knowledge.Result, error)
	DefaultLimit(corpus knowledge.Corpus) int
}

// TurnState accumulates activity across one conversation turn: which tools
// ran, which product results were surfaced, whether any search came back
// empty, and the content already streamed to the customer. One TurnState
// lives per turn and is not shared.
type TurnState struct {
	ToolsUsed   []string
	ProductHits []knowledge.Result

	// Streamed collects the content deltas already forwarded to the
	// customer, so a disconnected turn can persist what was actually seen.
	Streamed strings.Builder

	productSearched bool
	productEmpty    bool
	faqSearched     bool
	faqEmpty        bool
	emptyQuery      string
}

// recordSearch notes one search outcome and remembers the first query that
// found nothing.
func (s *TurnState) recordSearch(corpus knowledge.Corpus, query string, hits int) {
	empty := hits == 0
	if corpus == knowledge.CorpusProduct {
		s.productSearched = true
		s.productEmpty = s.productEmpty || empty
	} else {
		s.faqSearched = true
		s.faqEmpty = s.faqEmpty || empty
	}
	if empty && s.emptyQuery == "" {
		s.emptyQuery = query
	}
}

// MissingDemand reports whether this turn produced a content-gap signal,
// and if so the query and its classification.
func (s *TurnState) MissingDemand() (query string, qt knowledge.QueryType, ok bool) {
	pe := s.productSearched && s.productEmpty
	fe := s.faqSearched && s.faqEmpty
	if !pe && !fe {
		return "", "", false
	}
	return s.emptyQuery, knowledge.ClassifyEmpty(pe, fe), true
}

// Dispatcher executes tool requests returned by the model. It enforces the
// turn's retrieval policy: a search tool the policy excludes is refused
// here even if the model asked for it.
//
// Dispatch never fails the turn. Every failure path produces an inert tool
// response the model can explain its way around.
type Dispatcher struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewDispatcher creates a tool dispatcher.
func NewDispatcher(searcher Searcher, logger *slog.Logger) (*Dispatcher, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{searcher: searcher, logger: logger}, nil
}

// Dispatch runs one tool request under the turn's policy and returns the
// response part to feed back to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, store *tenant.Store, pol intent.Policy, req *ai.ToolRequest, state *TurnState) *ai.ToolResponse {
	state.ToolsUsed = append(state.ToolsUsed, req.Name)

	var output string
	switch req.Name {
	case ToolSearchProducts:
		output = d.searchProducts(ctx, store, pol, req.Input, state)
	case ToolSearchFaq:
		output = d.searchFaq(ctx, store, pol, req.Input, state)
	case ToolOrderStatus:
		output = d.orderStatus(req.Input)
	case ToolCreateHandoff:
		output = d.createHandoff(ctx, store, req.Input)
	default:
		d.logger.Warn("model requested unknown tool", "tool", req.Name, "store_id", store.ID)
		output = fmt.Sprintf("Error: unknown tool %q. Answer with the information you already have.", req.Name)
	}

	return &ai.ToolResponse{Name: req.Name, Ref: req.Ref, Output: output}
}

func (d *Dispatcher) searchProducts(ctx context.Context, store *tenant.Store, pol intent.Policy, input any, state *TurnState) string {
	if !pol.Allows(knowledge.CorpusProduct) {
		return "Product search is not available for this request. Answer without it."
	}

	var in searchProductsInput
	if err := decodeInput(input, &in); err != nil || strings.TrimSpace(in.Query) == "" {
		return "Error: search_products requires a non-empty \"query\"."
	}

	results, err := d.searcher.Search(ctx, store.ID, knowledge.CorpusProduct, in.Query, in.Limit, pol.Filters())
	if err != nil {
		d.logger.Error("product search failed", "store_id", store.ID, "error", err)
		return "Product search is temporarily unavailable. Apologize and offer to help another way."
	}

	state.recordSearch(knowledge.CorpusProduct, in.Query, len(results))
	state.ProductHits = append(state.ProductHits, results...)

	if len(results) == 0 {
		return "No matching products found. Say so honestly; do not invent products."
	}

	var b strings.Builder
	b.WriteString(knowledgeMarker)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Item.Title)
		if r.Item.Price != "" {
			fmt.Fprintf(&b, " (price: %s)", r.Item.Price)
		}
		if r.Item.Body != "" {
			fmt.Fprintf(&b, "\n   %s", r.Item.Body)
		}
		if r.Item.URL != "" {
			fmt.Fprintf(&b, "\n   %s", r.Item.URL)
		}
	}
	return b.String()
}

func (d *Dispatcher) searchFaq(ctx context.Context, store *tenant.Store, pol intent.Policy, input any, state *TurnState) string {
	if !pol.Allows(knowledge.CorpusFaq) {
		return "Knowledge-base search is not available for this request. Answer without it."
	}

	var in searchFaqInput
	if err := decodeInput(input, &in); err != nil || strings.TrimSpace(in.Query) == "" {
		return "Error: search_faq requires a non-empty \"query\"."
	}

	results, err := d.searcher.Search(ctx, store.ID, knowledge.CorpusFaq, in.Query, in.Limit, pol.Filters())
	if err != nil {
		d.logger.Error("faq search failed", "store_id", store.ID, "error", err)
		return "Knowledge-base search is temporarily unavailable. Apologize and offer a support ticket."
	}

	state.recordSearch(knowledge.CorpusFaq, in.Query, len(results))

	if len(results) == 0 {
		return "The knowledge base has no answer for this. Say so and offer a support ticket; do not guess."
	}

	var b strings.Builder
	b.WriteString(knowledgeMarker)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. Q: %s\n   A: %s", i+1, r.Item.Title, r.Item.Body)
	}
	return b.String()
}

// orderStatus is a stub until the shop-system integration lands. It still
// validates input so the model asks for a number before calling.
func (d *Dispatcher) orderStatus(input any) string {
	var in orderStatusInput
	if err := decodeInput(input, &in); err != nil || strings.TrimSpace(in.OrderNumber) == "" {
		return "Error: order_status requires an \"order_number\". Ask the customer for it."
	}
	return fmt.Sprintf("Order lookup for %s is not connected yet. Tell the customer that order tracking is available via the confirmation email, and offer a support ticket for anything urgent.", in.OrderNumber)
}

// createHandoff issues a reference code the customer can quote. Ticket
// delivery to the support inbox is handled by a separate worker reading
// the transcript; here only the code is minted.
func (d *Dispatcher) createHandoff(ctx context.Context, store *tenant.Store, input any) string {
	var in handoffInput
	if err := decodeInput(input, &in); err != nil || strings.TrimSpace(in.Reason) == "" {
		return "Error: create_handoff_ticket requires a \"reason\"."
	}

	ref := handoffReference()
	d.logger.Info("handoff ticket created",
		"store_id", store.ID, "reference", ref, "reason", in.Reason,
		"has_email", in.CustomerEmail != "")
	return fmt.Sprintf("Support ticket created with reference %s. Tell the customer the team will follow up, and ask them to keep the reference.", ref)
}

// handoffReference mints a short human-quotable ticket code.
func handoffReference() string {
	id := uuid.New()
	return "WS-" + strings.ToUpper(id.String()[:8])
}

// decodeInput converts the loosely typed tool input into the expected
// struct via a JSON round trip.
func decodeInput(input, target any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding tool input: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decoding tool input: %w", err)
	}
	return nil
}
