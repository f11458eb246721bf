package llm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/woodpecker023/woo-ai-chatbot/internal/llm"
	"github.com/woodpecker023/woo-ai-chatbot/internal/testutil"
)

func TestNewClient_RequiresGenkit(t *testing.T) {
	t.Parallel()

	if _, err := llm.NewClient(nil, nil, 0); err == nil {
		t.Fatal("nil genkit instance must be rejected")
	}
}

func TestComplete_RoutesThroughRegisteredModel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockLLM("fallback answer")
	mock.AddResponse("shipping", "We ship within two days.")
	mock.Register(g)

	client, err := llm.NewClient(g, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var streamed strings.Builder
	resp, err := client.Complete(ctx, llm.Request{
		Model:  testutil.MockModelName,
		System: "You are a shop assistant.",
		Messages: []*ai.Message{
			ai.NewUserTextMessage("how fast is shipping?"),
		},
		Temperature: 0.7,
		Stream: func(_ context.Context, chunk *ai.ModelResponseChunk) error {
			streamed.WriteString(chunk.Text())
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := resp.Text(); got != "We ship within two days." {
		t.Errorf("response = %q", got)
	}
	if streamed.String() != "We ship within two days." {
		t.Errorf("streamed = %q, want the full response", streamed.String())
	}

	calls := mock.Calls()
	if len(calls) != 1 || calls[0].UserMessage != "how fast is shipping?" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestComplete_ReturnToolRequests(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("wand", []*ai.ToolRequest{
		{Name: "search_products", Input: map[string]any{"query": "wand"}},
	}, "Let me check.")
	mock.Register(g)

	client, err := llm.NewClient(g, nil, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := client.Complete(ctx, llm.Request{
		Model:              testutil.MockModelName,
		Messages:           []*ai.Message{ai.NewUserTextMessage("do you sell wands?")},
		ReturnToolRequests: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	reqs := resp.ToolRequests()
	if len(reqs) != 1 || reqs[0].Name != "search_products" {
		t.Fatalf("tool requests = %+v, want one search_products call", reqs)
	}
}

func TestComplete_CanceledContext(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	testutil.NewMockLLM("unused").Register(g)

	client, err := llm.NewClient(g, nil, 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Complete(ctx, llm.Request{
		Model:    testutil.MockModelName,
		Messages: []*ai.Message{ai.NewUserTextMessage("hello")},
	}); err == nil {
		t.Fatal("canceled context must fail the call")
	}
}
