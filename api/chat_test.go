package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woodpecker023/woo-ai-chatbot/internal/chat"
	"github.com/woodpecker023/woo-ai-chatbot/internal/intent"
	"github.com/woodpecker023/woo-ai-chatbot/internal/log"
	"github.com/woodpecker023/woo-ai-chatbot/internal/tenant"
	"github.com/woodpecker023/woo-ai-chatbot/internal/testutil"
	"github.com/woodpecker023/woo-ai-chatbot/internal/usage"
)

// fakeResponder scripts the engine side of a turn.
type fakeResponder struct {
	run func(ctx context.Context, store *tenant.Store, req chat.TurnRequest, em chat.Emitter) error
}

func (f *fakeResponder) Respond(ctx context.Context, store *tenant.Store, req chat.TurnRequest, em chat.Emitter) error {
	if f.run == nil {
		return em.Done(chat.TurnSummary{Intent: intent.IntentSmalltalk})
	}
	return f.run(ctx, store, req, em)
}

type fakeResolver struct {
	stores map[string]*tenant.Store
}

func (f *fakeResolver) GetByAPIKey(_ context.Context, apiKey string) (*tenant.Store, error) {
	if s, ok := f.stores[apiKey]; ok {
		return s, nil
	}
	return nil, tenant.ErrNotFound
}

func newChatHandler(responder *fakeResponder) (*chatHandler, *tenant.Store) {
	store := &tenant.Store{ID: uuid.New(), Name: "Wizard Supplies", APIKey: "wk-valid"}
	return &chatHandler{
		engine: responder,
		stores: &fakeResolver{stores: map[string]*tenant.Store{"wk-valid": store}},
		logger: log.NewNop(),
	}, store
}

func postChat(h *chatHandler, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.handleMessage(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleMessage_MissingAPIKey(t *testing.T) {
	t.Parallel()

	h, _ := newChatHandler(&fakeResponder{})
	rec := postChat(h, "", `{"session_token":"tok","message":"hi"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", decodeError(t, rec).Error.Code)
}

func TestHandleMessage_UnknownAPIKey(t *testing.T) {
	t.Parallel()

	h, _ := newChatHandler(&fakeResponder{})
	rec := postChat(h, "wk-bogus", `{"session_token":"tok","message":"hi"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", decodeError(t, rec).Error.Code)
}

func TestHandleMessage_BodyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not json", "not json at all", "invalid_body"},
		{"missing session token", `{"message":"hi"}`, "missing_session_token"},
		{"missing message", `{"session_token":"tok"}`, "missing_message"},
		{"oversized message", `{"session_token":"tok","message":"` + strings.Repeat("x", maxMessageLen+1) + `"}`, "message_too_long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _ := newChatHandler(&fakeResponder{})
			rec := postChat(h, "wk-valid", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error.Code)
		})
	}
}

func TestHandleMessage_QuotaExceeded(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{run: func(_ context.Context, _ *tenant.Store, _ chat.TurnRequest, _ chat.Emitter) error {
		return &chat.QuotaError{Snapshot: usage.Snapshot{Allowed: false, Used: 100, Limit: 100, Month: "2026-08"}}
	}}
	h, _ := newChatHandler(responder)
	rec := postChat(h, "wk-valid", `{"session_token":"tok","message":"hi"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "quota_exceeded", body.Error.Code)

	details, ok := body.Error.Details.(map[string]any)
	require.True(t, ok, "quota details missing: %v", body.Error.Details)
	assert.Equal(t, float64(100), details["used"])
	assert.Equal(t, "2026-08", details["month"])
}

func TestHandleMessage_StreamsTurn(t *testing.T) {
	t.Parallel()

	var gotStore *tenant.Store
	var gotReq chat.TurnRequest
	responder := &fakeResponder{run: func(_ context.Context, store *tenant.Store, req chat.TurnRequest, em chat.Emitter) error {
		gotStore, gotReq = store, req
		if err := em.Content("Hello "); err != nil {
			return err
		}
		if err := em.Content("there!"); err != nil {
			return err
		}
		if err := em.Products([]chat.ProductRef{{ID: uuid.New(), Name: "Elder Wand"}}); err != nil {
			return err
		}
		return em.Done(chat.TurnSummary{Intent: intent.IntentBrowsing, ToolsUsed: []string{"search_products"}})
	}}
	h, store := newChatHandler(responder)
	rec := postChat(h, "wk-valid", `{"session_token":"tok","message":"wands?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, store.ID, gotStore.ID)
	assert.Equal(t, "wands?", gotReq.Message)

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	contents := testutil.FindAllEvents(events, "content")
	require.Len(t, contents, 2)
	assert.JSONEq(t, `{"delta":"Hello "}`, contents[0].Data)

	products := testutil.FindEvent(events, "products")
	require.NotNil(t, products)
	assert.Contains(t, products.Data, "Elder Wand")

	done := testutil.FindEvent(events, "done")
	require.NotNil(t, done)
	assert.Contains(t, done.Data, `"intent":"browsing"`)

	assert.Nil(t, testutil.FindEvent(events, "error"))
}

func TestHandleMessage_MidStreamFailure(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{run: func(_ context.Context, _ *tenant.Store, _ chat.TurnRequest, em chat.Emitter) error {
		if err := em.Content("partial answ"); err != nil {
			return err
		}
		return errors.New("model connection reset")
	}}
	h, _ := newChatHandler(responder)
	rec := postChat(h, "wk-valid", `{"session_token":"tok","message":"hi"}`)

	// Headers already went out with 200; the failure reaches the widget
	// as an error frame.
	assert.Equal(t, http.StatusOK, rec.Code)
	events := testutil.ParseSSEEvents(t, rec.Body.String())
	require.NotNil(t, testutil.FindEvent(events, "content"))
	errEvent := testutil.FindEvent(events, "error")
	require.NotNil(t, errEvent)
	assert.Contains(t, errEvent.Data, "could not finish")
}

func TestHandleMessage_PreStreamFailure(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{run: func(_ context.Context, _ *tenant.Store, _ chat.TurnRequest, _ chat.Emitter) error {
		return errors.New("session store down")
	}}
	h, _ := newChatHandler(responder)
	rec := postChat(h, "wk-valid", `{"session_token":"tok","message":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec).Error.Code)
}

func TestHandleMessage_CanceledTurnWritesNothing(t *testing.T) {
	t.Parallel()

	responder := &fakeResponder{run: func(_ context.Context, _ *tenant.Store, _ chat.TurnRequest, em chat.Emitter) error {
		if err := em.Content("partial"); err != nil {
			return err
		}
		return context.Canceled
	}}
	h, _ := newChatHandler(responder)
	rec := postChat(h, "wk-valid", `{"session_token":"tok","message":"hi"}`)

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	assert.Nil(t, testutil.FindEvent(events, "error"))
}
