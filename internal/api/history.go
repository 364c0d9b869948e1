package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/okarin0/relay/internal/store"
)

const defaultHistoryLimit = 20

// entryJSON is the wire shape of one persisted exchange.
type entryJSON struct {
	ID               int64  `json:"id"`
	Prompt           string `json:"prompt"`
	Result           string `json:"result"`
	DateTime         string `json:"date_time"`
	ConversationName string `json:"conversation_name"`
}

func toEntryJSON(entries []store.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON{
			ID:               e.ID,
			Prompt:           e.Prompt,
			Result:           e.Result,
			DateTime:         e.DateTime.Format(time.RFC3339),
			ConversationName: e.ConversationName,
		})
	}
	return out
}

// historyHandler serves the read-side conversation endpoints.
type historyHandler struct {
	store  Store
	logger *slog.Logger
}

// history handles GET /api/history with 1-based page and limit query
// parameters.
func (h *historyHandler) history(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 {
		limit = defaultHistoryLimit
	}

	result, err := h.store.History(r.Context(), page, limit)
	if err != nil {
		if errors.Is(err, store.ErrPageNotFound) {
			writeError(w, http.StatusNotFound, "Page not found", h.logger)
			return
		}
		h.logger.Error("querying history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_items":  result.TotalItems,
		"total_pages":  result.TotalPages,
		"current_page": result.CurrentPage,
		"has_next":     result.HasNext,
		"has_previous": result.HasPrevious,
		"results":      toEntryJSON(result.Entries),
	}, h.logger)
}

// conversation handles GET /api/conversations/{name}.
func (h *historyHandler) conversation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	entries, err := h.store.ByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found", h.logger)
			return
		}
		h.logger.Error("querying conversation", "error", err, "conversation", name)
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	messages := toEntryJSON(entries)
	lastTime := ""
	if len(messages) > 0 {
		lastTime = messages[len(messages)-1].DateTime
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                name,
		"messages":          messages,
		"last_message_time": lastTime,
	}, h.logger)
}

// latest handles GET /api/interface, returning the most recently active
// conversation.
func (h *historyHandler) latest(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Latest(r.Context())
	if err != nil {
		h.logger.Error("querying latest conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", h.logger)
		return
	}

	if len(entries) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"result":  []entryJSON{},
			"message": "No conversations found.",
		}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": toEntryJSON(entries)}, h.logger)
}

// queryInt reads an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
