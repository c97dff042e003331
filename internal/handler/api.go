package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/middleware"
	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/internal/store"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// APIHandler serves the read-side conversation endpoints.
type APIHandler struct {
	conversations *store.ConversationLog
	resolver      *identity.Resolver
	logger        *logger.Logger
}

// NewAPIHandler creates an API handler.
func NewAPIHandler(conversations *store.ConversationLog, resolver *identity.Resolver, log *logger.Logger) *APIHandler {
	return &APIHandler{
		conversations: conversations,
		resolver:      resolver,
		logger:        log,
	}
}

// identify resolves the caller or writes a 401.
func (h *APIHandler) identify(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id := h.resolver.Resolve(r.Context(), middleware.GetSessionToken(r.Context()))
	if id.Anonymous() {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return identity.Identity{}, false
	}
	return id, true
}

// ListConversations handles GET /api/v1/conversations
func (h *APIHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	limit, err := middleware.ValidateLimit(queryInt(r, "limit"), defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := queryInt(r, "offset")
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset out of range")
		return
	}

	convs, err := h.conversations.List(r.Context(), id.UserID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// GetConversation handles GET /api/v1/conversations/{sessionID}
func (h *APIHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conv == nil || conv.UserID != id.UserID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /api/v1/conversations/{sessionID}/messages
func (h *APIHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conv == nil || conv.UserID != id.UserID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit, err := middleware.ValidateLimit(queryInt(r, "limit"), defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	messages, hasMore, err := h.conversations.Messages(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to load messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{Messages: messages, HasMore: hasMore})
}

// ListCalendarEvents handles GET /api/v1/events
func (h *APIHandler) ListCalendarEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	limit, err := middleware.ValidateLimit(queryInt(r, "limit"), defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.conversations.CalendarEvents(r.Context(), id.UserID, limit)
	if err != nil {
		h.logger.Error("failed to list calendar events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list calendar events")
		return
	}
	writeJSON(w, http.StatusOK, model.ListCalendarEventsResponse{
		Events: events,
		Total:  len(events),
	})
}

// Stats handles GET /api/v1/stats
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	stats, err := h.conversations.Stats(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
