package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"snippet-sandbox/internal/bot"
	"snippet-sandbox/internal/monitor"
	"snippet-sandbox/internal/storage"
)

type Handlers struct {
	router  *bot.Router
	db      *storage.DB
	metrics *monitor.Metrics
}

func NewHandlers(router *bot.Router, db *storage.DB, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		router:  router,
		db:      db,
		metrics: metrics,
	}
}

// HandleCommand runs one forwarded chat message through the command
// router. Replies are buffered and returned in order; a message that
// carries no command prefix comes back with handled=false.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.Message.UserID == 0 {
		writeError(w, "message.user_id is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Message.Content == "" {
		writeError(w, "message.content is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	replies := make([]string, 0, 2)
	respond := bot.ResponderFunc(func(_ context.Context, text string) error {
		replies = append(replies, text)
		return nil
	})

	handled, err := h.router.Dispatch(r.Context(), req.Message, respond)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Msg("command dispatch failed")
		writeError(w, "command dispatch failed", "DISPATCH_FAILED", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		Handled:   handled,
		Replies:   replies,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "submission ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	sub, err := h.db.GetSubmission(r.Context(), id)
	if err != nil {
		writeError(w, "submission not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.SubmissionFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, "user_id must be an integer", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.UserID = id
	}

	subs, err := h.db.ListSubmissions(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
