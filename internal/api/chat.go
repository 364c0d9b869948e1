package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/okarin0/relay/internal/chat"
	"github.com/okarin0/relay/internal/stream"
	"github.com/okarin0/relay/internal/tools"
)

// maxChatBodyBytes caps the inbound request body. Inline data-URL images
// arrive base64-encoded inside the history, so the cap is generous.
const maxChatBodyBytes = 1 << 20

// ModelFactory builds a provider client bound to a caller-supplied API
// key. Called once per stream request.
type ModelFactory func(ctx context.Context, apiKey string) (stream.Model, error)

// chatRequest is the POST /api/chat/stream body. Credentials travel in the
// body so each caller streams on their own quota.
type chatRequest struct {
	GeminiAPIKey     string         `json:"geminiApiKey"`
	TavilyAPIKey     string         `json:"tavilyApiKey"`
	History          []chat.Message `json:"history"`
	Prompt           string         `json:"prompt"`
	ConversationName string         `json:"conversation_name"`
}

// chatHandler serves the streaming chat endpoint.
type chatHandler struct {
	models        ModelFactory
	registry      *tools.Registry
	recorder      stream.Recorder
	logger        *slog.Logger
	streamTimeout time.Duration
}

// stream handles POST /api/chat/stream. All validation failures are plain
// JSON errors; the SSE stream only starts once the request is accepted.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body", h.logger)
		return
	}

	if req.GeminiAPIKey == "" {
		writeError(w, http.StatusUnauthorized, "geminiApiKey is required", h.logger)
		return
	}
	if req.TavilyAPIKey == "" {
		writeError(w, http.StatusUnauthorized, "tavilyApiKey is required", h.logger)
		return
	}

	messages := req.History
	if req.Prompt != "" {
		messages = append(messages, chat.UserText(req.Prompt))
	}
	if len(messages) == 0 {
		writeError(w, http.StatusBadRequest, "No messages provided", h.logger)
		return
	}

	turns := chat.History(messages)
	if len(turns) == 0 {
		writeError(w, http.StatusBadRequest, "No messages provided", h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.streamTimeout)
	defer cancel()

	model, err := h.models(ctx, req.GeminiAPIKey)
	if err != nil {
		h.logger.Error("creating provider client", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to initialize model provider", h.logger)
		return
	}

	emitter, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported", h.logger)
		return
	}

	orch, err := stream.New(stream.Params{
		Model:            model,
		Registry:         h.registry,
		Recorder:         h.recorder,
		Emitter:          emitter,
		Logger:           h.logger,
		Credentials:      tools.Credentials{GeminiAPIKey: req.GeminiAPIKey, TavilyAPIKey: req.TavilyAPIKey},
		History:          turns,
		PromptSummary:    chat.PromptSummary(messages),
		ConversationName: req.ConversationName,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	// Leading and trailing comments bracket the event stream as
	// keepalive padding for buffering proxies.
	_ = emitter.Comment()
	orch.Run(ctx)
	_ = emitter.Comment()
}
