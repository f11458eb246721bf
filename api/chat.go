package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/woodpecker023/woo-ai-chatbot/api/sse"
	"github.com/woodpecker023/woo-ai-chatbot/internal/chat"
	"github.com/woodpecker023/woo-ai-chatbot/internal/tenant"
)

// maxMessageLen caps incoming message size before any processing.
const maxMessageLen = 4000

// maxBodyBytes bounds the request body read.
const maxBodyBytes = 64 * 1024

// Responder runs one conversation turn. *chat.Engine satisfies it.
type Responder interface {
	Respond(ctx context.Context, store *tenant.Store, req chat.TurnRequest, em chat.Emitter) error
}

// StoreResolver authenticates widget API keys. *tenant.Repo satisfies it.
type StoreResolver interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Store, error)
}

// chatHandler serves the widget's message endpoint.
type chatHandler struct {
	engine Responder
	stores StoreResolver
	logger *slog.Logger
}

type chatRequest struct {
	SessionToken string `json:"session_token"`
	Message      string `json:"message"`
}

// handleMessage is POST /v1/chat. On success the response is an SSE stream;
// admission failures are plain JSON errors so the widget can show quota or
// auth messages without parsing a stream.
func (h *chatHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	apiKey := r.Header.Get("X-Api-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing_api_key", "X-Api-Key header is required", nil)
		return
	}

	store, err := h.stores.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "unknown API key", nil)
			return
		}
		h.logger.Error("store lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "temporary failure, retry shortly", nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", nil)
		return
	}
	if req.SessionToken == "" {
		writeError(w, http.StatusBadRequest, "missing_session_token", "session_token is required", nil)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", nil)
		return
	}
	if len(req.Message) > maxMessageLen {
		writeError(w, http.StatusBadRequest, "message_too_long", "message exceeds the allowed length", nil)
		return
	}

	em := &streamEmitter{w: w}
	err = h.engine.Respond(ctx, store, chat.TurnRequest{
		SessionToken: req.SessionToken,
		Message:      req.Message,
	}, em)
	if err == nil {
		return
	}

	var quotaErr *chat.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded",
			"monthly message quota exhausted", quotaErr.Snapshot)
	case errors.Is(err, context.Canceled):
		// Customer navigated away; nothing to write.
		h.logger.Debug("turn canceled", "store_id", store.ID)
	case em.started():
		// Mid-stream failure: the status line is gone, only an error
		// frame can reach the widget.
		h.logger.Error("turn failed mid-stream", "store_id", store.ID, "error", err)
		_ = em.sw.WriteError("internal", "the assistant could not finish this reply")
	default:
		h.logger.Error("turn failed", "store_id", store.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "temporary failure, retry shortly", nil)
	}
}

// streamEmitter adapts the SSE writer to chat.Emitter, opening the stream
// lazily on the first frame. Admission errors surface before any frame is
// written, so they can still use a proper HTTP status.
type streamEmitter struct {
	w  http.ResponseWriter
	sw *sse.Writer
}

func (e *streamEmitter) started() bool { return e.sw != nil }

func (e *streamEmitter) ensure() error {
	if e.sw != nil {
		return nil
	}
	sw, err := sse.NewWriter(e.w)
	if err != nil {
		return err
	}
	e.sw = sw
	return nil
}

func (e *streamEmitter) Content(delta string) error {
	if err := e.ensure(); err != nil {
		return err
	}
	return e.sw.WriteJSON(sse.EventContent, map[string]string{"delta": delta})
}

func (e *streamEmitter) Products(products []chat.ProductRef) error {
	if err := e.ensure(); err != nil {
		return err
	}
	return e.sw.WriteJSON(sse.EventProducts, map[string]any{"products": products})
}

func (e *streamEmitter) Done(summary chat.TurnSummary) error {
	if err := e.ensure(); err != nil {
		return err
	}
	return e.sw.WriteJSON(sse.EventDone, summary)
}
