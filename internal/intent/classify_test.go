package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/woodpecker023/woo-ai-chatbot/internal/llm"
	"github.com/woodpecker023/woo-ai-chatbot/internal/log"
)

// stubCompleter returns a fixed response or error and records requests.
type stubCompleter struct {
	text string
	err  error
	reqs []llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (*ai.ModelResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.ModelResponse{
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(s.text)},
		},
	}, nil
}

func newTestClassifier(t *testing.T, c Completer) *Classifier {
	t.Helper()
	cl, err := NewClassifier(c, "mock/classifier", log.NewNop())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return cl
}

func TestClassify_ParsesModelOutput(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{text: `{"intent": "product-detail", "confidence": 0.92, "reasoning": "asks about one product", "suggested_tools": ["search_products"]}`}
	cl := newTestClassifier(t, stub)

	res := cl.Classify(context.Background(), "does the Aurora lamp come in black?", nil)

	if res.Intent != IntentProductDetail {
		t.Errorf("Intent = %q, want product-detail", res.Intent)
	}
	if res.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", res.Confidence)
	}
	if len(res.SuggestedTools) != 1 || res.SuggestedTools[0] != "search_products" {
		t.Errorf("SuggestedTools = %v", res.SuggestedTools)
	}
}

func TestClassify_StripsCodeFences(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{text: "```json\n{\"intent\": \"smalltalk\", \"confidence\": 0.99}\n```"}
	cl := newTestClassifier(t, stub)

	res := cl.Classify(context.Background(), "hi there!", nil)
	if res.Intent != IntentSmalltalk {
		t.Errorf("Intent = %q, want smalltalk", res.Intent)
	}
}

func TestClassify_FallbackPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		stub *stubCompleter
	}{
		{"provider error", &stubCompleter{err: errors.New("provider down")}},
		{"empty output", &stubCompleter{text: "   "}},
		{"not json", &stubCompleter{text: "the customer is browsing"}},
		{"oversized output", &stubCompleter{text: strings.Repeat("x", 9000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cl := newTestClassifier(t, tt.stub)
			res := cl.Classify(context.Background(), "anything", nil)

			if res.Intent != IntentGeneralSupport {
				t.Errorf("Intent = %q, want general-support", res.Intent)
			}
			if res.Confidence != FallbackConfidence {
				t.Errorf("Confidence = %v, want %v", res.Confidence, FallbackConfidence)
			}
			if res.Reasoning == "" {
				t.Error("fallback must carry a reasoning string")
			}
		})
	}
}

func TestClassify_CoercesUnknownIntent(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{text: `{"intent": "shopping_spree", "confidence": 1.7}`}
	cl := newTestClassifier(t, stub)

	res := cl.Classify(context.Background(), "buy everything", nil)
	if res.Intent != IntentGeneralSupport {
		t.Errorf("Intent = %q, want general-support after coercion", res.Intent)
	}
	if res.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", res.Confidence)
	}
}

func TestClassify_BoundsHistoryWindow(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{text: `{"intent": "browsing", "confidence": 0.8}`}
	cl := newTestClassifier(t, stub)

	history := []Exchange{
		{Role: "user", Content: "oldest message"},
		{Role: "assistant", Content: "reply one"},
		{Role: "user", Content: "middle message"},
		{Role: "assistant", Content: "reply two"},
	}
	cl.Classify(context.Background(), "show me jackets", history)

	if len(stub.reqs) != 1 {
		t.Fatalf("expected one completion call, got %d", len(stub.reqs))
	}
	prompt := stub.reqs[0].Messages[0].Text()
	if strings.Contains(prompt, "oldest message") {
		t.Error("history beyond the window leaked into the prompt")
	}
	if !strings.Contains(prompt, "reply two") {
		t.Error("recent history missing from the prompt")
	}
}
