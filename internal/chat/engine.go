// Package chat orchestrates one conversation turn: admission, intent
// classification, the streaming tool-augmented completion rounds, and
// persistence of the resulting transcript entries.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
	"github.com/woodpecker023/woo-ai-chatbot/internal/intent"
	"github.com/woodpecker023/woo-ai-chatbot/internal/knowledge"
	"github.com/woodpecker023/woo-ai-chatbot/internal/llm"
	"github.com/woodpecker023/woo-ai-chatbot/internal/prompt"
	"github.com/woodpecker023/woo-ai-chatbot/internal/security"
	"github.com/woodpecker023/woo-ai-chatbot/internal/session"
	"github.com/woodpecker023/woo-ai-chatbot/internal/tenant"
	"github.com/woodpecker023/woo-ai-chatbot/internal/usage"
)

// maxToolRequestsPerTurn caps tool fan-out from the first round.
const maxToolRequestsPerTurn = 6

// QuotaError rejects a turn before any model call. The handler maps it to
// an HTTP 429 with the snapshot attached.
type QuotaError struct {
	Snapshot usage.Snapshot
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("monthly message quota exhausted: %d/%d for %s",
		e.Snapshot.Used, e.Snapshot.Limit, e.Snapshot.Month)
}

// ProductRef is one surfaced product in the products frame sent to the
// widget alongside the answer.
type ProductRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price string    `json:"price,omitempty"`
	URL   string    `json:"url,omitempty"`
}

// TurnSummary closes a successful turn.
type TurnSummary struct {
	Intent    intent.Intent  `json:"intent"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
	Usage     usage.Snapshot `json:"usage"`
}

// Emitter receives the streamed output of a turn. The api package
// implements it over SSE; tests implement it over a buffer.
//
// Call order is: zero or more Content calls, then at most one Products
// call, then exactly one Done call. An Emitter error aborts the turn.
type Emitter interface {
	Content(delta string) error
	Products(products []ProductRef) error
	Done(summary TurnSummary) error
}

// TurnRequest is one incoming widget message.
type TurnRequest struct {
	SessionToken string
	Message      string
}

// Completer is the model dependency. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*ai.ModelResponse, error)
}

// IntentClassifier classifies the incoming message. *intent.Classifier
// satisfies it.
type IntentClassifier interface {
	Classify(ctx context.Context, messageText string, history []intent.Exchange) intent.Result
}

// SessionStore is the transcript dependency. *session.Store satisfies it.
type SessionStore interface {
	FindOrCreate(ctx context.Context, storeID uuid.UUID, token string) (*session.Session, error)
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (*session.Message, error)
	RecentHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]*session.Message, error)
}

// UsageGate is the quota dependency. *usage.Gate satisfies it.
type UsageGate interface {
	Check(ctx context.Context, storeID uuid.UUID, limit int) (usage.Snapshot, error)
	Increment(ctx context.Context, storeID uuid.UUID) error
}

// DemandSink records content-gap telemetry. *knowledge.DemandRecorder
// satisfies it.
type DemandSink interface {
	Record(ctx context.Context, e knowledge.MissingDemandEntry) error
}

// Engine runs conversation turns.
//
// Engine is safe for concurrent use by multiple goroutines; per-turn state
// lives on the stack of Respond.
type Engine struct {
	completer  Completer
	classifier IntentClassifier
	sessions   SessionStore
	gate       UsageGate
	dispatcher *Dispatcher
	demand     DemandSink
	prompts    *prompt.Builder
	sanitizer  *security.Sanitizer
	tools      []ai.ToolRef
	cfg        *config.Config
	logger     *slog.Logger
}

// NewEngine wires a conversation engine.
func NewEngine(
	completer Completer,
	classifier IntentClassifier,
	sessions SessionStore,
	gate UsageGate,
	dispatcher *Dispatcher,
	demand DemandSink,
	tools []ai.ToolRef,
	cfg *config.Config,
	logger *slog.Logger,
) (*Engine, error) {
	switch {
	case completer == nil:
		return nil, fmt.Errorf("completer is required")
	case classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case sessions == nil:
		return nil, fmt.Errorf("session store is required")
	case gate == nil:
		return nil, fmt.Errorf("usage gate is required")
	case dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	case demand == nil:
		return nil, fmt.Errorf("demand sink is required")
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		completer:  completer,
		classifier: classifier,
		sessions:   sessions,
		gate:       gate,
		dispatcher: dispatcher,
		demand:     demand,
		prompts:    prompt.NewBuilder(),
		sanitizer:  security.NewSanitizer(),
		tools:      tools,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// quotaLimit resolves the tenant's monthly allowance.
func (e *Engine) quotaLimit(store *tenant.Store) int {
	if store.PlanMonthlyLimit != nil {
		return *store.PlanMonthlyLimit
	}
	return e.cfg.FreeMonthlyMessages
}

// Respond runs one full turn for the given tenant and streams the result
// through em.
//
// The turn fails as a whole when admission, the first persistence write,
// a model round, or the final persistence write fails; telemetry and the
// usage increment are best-effort and only logged. A context cancellation
// (customer navigated away) aborts the turn, but any content deltas the
// customer already received are persisted so the transcript matches what
// was seen.
func (e *Engine) Respond(ctx context.Context, store *tenant.Store, req TurnRequest, em Emitter) error {
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}

	// Quota comes first: an over-limit turn must not create sessions or
	// any other rows.
	snapshot, err := e.gate.Check(ctx, store.ID, e.quotaLimit(store))
	if err != nil {
		return fmt.Errorf("checking quota: %w", err)
	}
	if !snapshot.Allowed {
		return &QuotaError{Snapshot: snapshot}
	}

	sess, err := e.sessions.FindOrCreate(ctx, store.ID, req.SessionToken)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	history, err := e.sessions.RecentHistory(ctx, sess.ID, e.cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	res := e.classifier.Classify(ctx, req.Message, toExchanges(history, e.cfg.ClassifierHistory))
	pol := intent.PolicyFor(res.Intent, e.cfg.Retrieval)

	// The user message is part of the billing and audit record, so its
	// write must succeed before any model call.
	if _, err := e.sessions.AppendMessage(ctx, sess.ID, session.RoleUser, req.Message, map[string]any{
		"intent":     string(res.Intent),
		"confidence": res.Confidence,
	}); err != nil {
		return fmt.Errorf("persisting user message: %w", err)
	}

	system := e.prompts.Build(store, &res)
	messages := e.modelMessages(history, req.Message)

	state := &TurnState{}
	answer, err := e.converse(ctx, store, pol, system, messages, state, em)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.persistPartial(ctx, sess.ID, res.Intent, state)
		}
		return err
	}

	refs := productRefs(state.ProductHits)
	if len(refs) > 0 {
		if err := em.Products(refs); err != nil {
			return fmt.Errorf("emitting products: %w", err)
		}
	}

	e.recordMissingDemand(ctx, store.ID, sess.ID, req.Message, state)

	meta := map[string]any{
		"intent":     string(res.Intent),
		"tools_used": state.ToolsUsed,
	}
	if len(refs) > 0 {
		meta["products"] = refs
	}
	if _, err := e.sessions.AppendMessage(ctx, sess.ID, session.RoleAssistant, answer, meta); err != nil {
		return fmt.Errorf("persisting assistant message: %w", err)
	}

	// The reply already streamed; a cancellation racing the tail of the
	// turn must not drop the counter tick, and losing one tick is still
	// better than failing the turn.
	if err := e.gate.Increment(context.WithoutCancel(ctx), store.ID); err != nil {
		e.logger.Warn("usage increment failed", "store_id", store.ID, "error", err)
	} else {
		snapshot.Used++
	}

	return em.Done(TurnSummary{
		Intent:    res.Intent,
		ToolsUsed: state.ToolsUsed,
		Usage:     snapshot,
	})
}

// converse runs the bounded two-round completion: a first round that may
// request tools, an external dispatch of those requests, and a second
// round without tools that must produce the final answer.
func (e *Engine) converse(ctx context.Context, store *tenant.Store, pol intent.Policy, system string, messages []*ai.Message, state *TurnState, em Emitter) (string, error) {
	stream := func(_ context.Context, chunk *ai.ModelResponseChunk) error {
		if text := chunk.Text(); text != "" {
			state.Streamed.WriteString(text)
			return em.Content(text)
		}
		return nil
	}

	resp, err := e.completer.Complete(ctx, llm.Request{
		Model:              e.cfg.ChatModel,
		System:             system,
		Messages:           messages,
		Tools:              e.tools,
		Temperature:        e.cfg.Temperature,
		ReturnToolRequests: true,
		Stream:             stream,
	})
	if err != nil {
		return "", fmt.Errorf("first completion round: %w", err)
	}

	toolRequests := resp.ToolRequests()
	if len(toolRequests) == 0 {
		return resp.Text(), nil
	}
	if len(toolRequests) > maxToolRequestsPerTurn {
		e.logger.Warn("truncating tool requests",
			"store_id", store.ID, "requested", len(toolRequests))
		toolRequests = toolRequests[:maxToolRequestsPerTurn]
	}

	parts := make([]*ai.Part, 0, len(toolRequests))
	for _, tr := range toolRequests {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		parts = append(parts, ai.NewToolResponsePart(e.dispatcher.Dispatch(ctx, store, pol, tr, state)))
	}

	messages = append(messages, resp.Message, ai.NewMessage(ai.RoleTool, nil, parts...))

	// No tools on the second round: the model has its data and must answer.
	final, err := e.completer.Complete(ctx, llm.Request{
		Model:       e.cfg.ChatModel,
		System:      system,
		Messages:    messages,
		Temperature: e.cfg.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return "", fmt.Errorf("second completion round: %w", err)
	}

	return final.Text(), nil
}

// persistPartial writes the content the customer already received before a
// disconnect, so the transcript reflects what was seen. Best-effort: the
// turn is already failing.
func (e *Engine) persistPartial(ctx context.Context, sessionID uuid.UUID, it intent.Intent, state *TurnState) {
	partial := state.Streamed.String()
	if partial == "" {
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := e.sessions.AppendMessage(wctx, sessionID, session.RoleAssistant, partial, map[string]any{
		"intent":     string(it),
		"tools_used": state.ToolsUsed,
		"partial":    true,
	}); err != nil {
		e.logger.Warn("persisting partial reply failed",
			"session_id", sessionID, "error", err)
	}
}

// recordMissingDemand writes the content-gap signal, at most once per turn.
// Detached from turn cancellation: telemetry should survive a disconnect.
func (e *Engine) recordMissingDemand(ctx context.Context, storeID, sessionID uuid.UUID, message string, state *TurnState) {
	query, qt, ok := state.MissingDemand()
	if !ok {
		return
	}
	if query == "" {
		query = message
	}
	err := e.demand.Record(context.WithoutCancel(ctx), knowledge.MissingDemandEntry{
		StoreID:   storeID,
		SessionID: sessionID,
		Query:     query,
		QueryType: qt,
		Tools:     state.ToolsUsed,
	})
	if err != nil {
		e.logger.Warn("recording missing demand failed",
			"store_id", storeID, "error", err)
	}
}

// modelMessages renders the history window plus the current message for
// the model. Customer-controlled text passes through the injection filter;
// the stored transcript keeps the original.
func (e *Engine) modelMessages(history []*session.Message, current string) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			msgs = append(msgs, ai.NewUserTextMessage(e.sanitizer.Sanitize(m.Content)))
		case session.RoleAssistant:
			msgs = append(msgs, ai.NewModelTextMessage(m.Content))
		}
	}
	return append(msgs, ai.NewUserTextMessage(e.sanitizer.Sanitize(current)))
}

// toExchanges adapts the most recent limit transcript entries for the
// classifier.
func toExchanges(history []*session.Message, limit int) []intent.Exchange {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]intent.Exchange, 0, len(history))
	for _, m := range history {
		out = append(out, intent.Exchange{Role: m.Role, Content: m.Content})
	}
	return out
}

// productRefs deduplicates surfaced products by ID, preserving order.
func productRefs(hits []knowledge.Result) []ProductRef {
	seen := make(map[uuid.UUID]bool, len(hits))
	refs := make([]ProductRef, 0, len(hits))
	for _, h := range hits {
		if seen[h.Item.ID] {
			continue
		}
		seen[h.Item.ID] = true
		refs = append(refs, ProductRef{
			ID:    h.Item.ID,
			Name:  h.Item.Title,
			Price: h.Item.Price,
			URL:   h.Item.URL,
		})
	}
	return refs
}
