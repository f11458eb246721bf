package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/woodpecker023/woo-ai-chatbot/internal/llm"
)

// FallbackConfidence is reported when classification could not complete.
const FallbackConfidence = 0.3

// classifierTemperature keeps the structured call near-deterministic.
const classifierTemperature = 0.1

// maxHistory bounds the conversation window shown to the classifier.
const maxHistory = 3

// maxResponseBytes limits the model response size before JSON parsing.
const maxResponseBytes = 8 * 1024

// Completer is the completion dependency of the classifier.
// *llm.Client satisfies it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*ai.ModelResponse, error)
}

// Classifier maps a customer message to an intent via a single structured
// LLM call. Classification never fails upward: every error path degrades
// to general-support with FallbackConfidence.
type Classifier struct {
	completer Completer
	model     string
	logger    *slog.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(completer Completer, model string, logger *slog.Logger) (*Classifier, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{completer: completer, model: model, logger: logger}, nil
}

// classifierPrompt steers the model with one worked example per intent.
// %s placeholders: (1) conversation window, (2) current message.
const classifierPrompt = `You are an intent classifier for an online store's customer assistant.
Classify the customer's CURRENT message into exactly one intent:

- "browsing": exploring the catalog without a specific product in mind.
  Example: "what do you have for summer?"
- "product-detail": asking about one specific product's attributes.
  Example: "does the Aurora lamp come in black?"
- "product-comparison": weighing two or more products against each other.
  Example: "which is warmer, the wool or the fleece jacket?"
- "shipping-returns": delivery times, shipping costs, return procedures.
  Example: "how long does delivery to Austria take?"
- "order-status": the state of an already placed order.
  Example: "where's my order #12345?"
- "payment": payment methods, invoices, charges.
  Example: "can I pay with Klarna?"
- "policy": warranties, terms, privacy, legal questions.
  Example: "what's your warranty on electronics?"
- "general-support": any other support request.
  Example: "my discount code doesn't work"
- "smalltalk": greetings, thanks, chit-chat with no request.
  Example: "hi there!"

Also suggest which tools could help, from: search_products, search_faq,
order_status, create_handoff_ticket. Suggest none for smalltalk.

Recent conversation:
%s

Current message: %s

Respond with only a JSON object:
{"intent": "...", "confidence": 0.0-1.0, "reasoning": "...", "suggested_tools": ["..."]}`

// Classify classifies messageText given up to three recent exchanges.
// The returned Result is always usable; provider failures and malformed
// output degrade to the general-support fallback.
func (c *Classifier) Classify(ctx context.Context, messageText string, history []Exchange) Result {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	prompt := fmt.Sprintf(classifierPrompt, formatHistory(history), messageText)

	resp, err := c.completer.Complete(ctx, llm.Request{
		Model:       c.model,
		Messages:    []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
		Temperature: classifierTemperature,
	})
	if err != nil {
		return c.fallback(fmt.Sprintf("classification call failed: %v", err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return c.fallback("classifier returned empty output")
	}
	if len(text) > maxResponseBytes {
		return c.fallback(fmt.Sprintf("classifier response too large: %d bytes", len(text)))
	}

	var raw struct {
		Intent         string   `json:"intent"`
		Confidence     float64  `json:"confidence"`
		Reasoning      string   `json:"reasoning"`
		SuggestedTools []string `json:"suggested_tools"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &raw); err != nil {
		return c.fallback(fmt.Sprintf("malformed classifier output: %v", err))
	}

	result := Result{
		Intent:         Coerce(raw.Intent),
		Confidence:     clamp01(raw.Confidence),
		Reasoning:      raw.Reasoning,
		SuggestedTools: raw.SuggestedTools,
	}

	c.logger.Debug("classified intent",
		"intent", result.Intent,
		"confidence", result.Confidence,
		"coerced", !Intent(raw.Intent).Valid())
	return result
}

// fallback returns the general-support result used on any failure.
func (c *Classifier) fallback(reason string) Result {
	c.logger.Warn("intent classification fell back", "reason", reason)
	return Result{
		Intent:     IntentGeneralSupport,
		Confidence: FallbackConfidence,
		Reasoning:  reason,
	}
}

// formatHistory renders the conversation window for the prompt.
func formatHistory(history []Exchange) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, ex := range history {
		role := "Customer"
		if ex.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, ex.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// stripCodeFences removes ```json ... ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
