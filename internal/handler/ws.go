package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/middleware"
	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/internal/relay"
	"github.com/voicecal/voice-scheduler/internal/store"
	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/metrics"
)

// WSHandler accepts browser voice connections and bridges them to the
// realtime service.
type WSHandler struct {
	apiKey        string
	realtimeURL   string
	resolver      *identity.Resolver
	conversations *store.ConversationLog
	dispatcher    *relay.Dispatcher
	tz            *timezone.Normalizer
	logger        *logger.Logger
	upgrader      websocket.Upgrader
}

// NewWSHandler creates the voice WebSocket handler. allowedOrigins follows
// the CORS configuration; "*" or an empty list accepts any origin.
func NewWSHandler(
	apiKey, realtimeURL string,
	resolver *identity.Resolver,
	conversations *store.ConversationLog,
	dispatcher *relay.Dispatcher,
	tz *timezone.Normalizer,
	allowedOrigins []string,
	log *logger.Logger,
) *WSHandler {
	return &WSHandler{
		apiKey:        apiKey,
		realtimeURL:   realtimeURL,
		resolver:      resolver,
		conversations: conversations,
		dispatcher:    dispatcher,
		tz:            tz,
		logger:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetSessionToken(r.Context())
	id := h.resolver.Resolve(r.Context(), token)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := relay.NewWSTransport(conn)

	sessionID := uuid.NewString()
	log := h.logger.WithSession(sessionID, r.RemoteAddr, id.UserID)

	conv := &model.Conversation{
		SessionID: sessionID,
		UserID:    id.UserID,
		Status:    model.StatusActive,
		StartedAt: time.Now().UTC(),
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.conversations.Create(r.Context(), conv); err != nil {
		log.Warn("failed to create conversation record", zap.Error(err))
	}

	if h.apiKey == "" {
		log.Error("refusing voice session: API key not configured")
		client.WriteJSON(relay.NewErrorFrame("OpenAI API key not configured"))
		client.Close()
		h.endConversation(sessionID, model.StatusError, log)
		return
	}

	client.WriteJSON(relay.NewAuthStatusFrame(id.Credential != nil, id.Email))

	upstream, err := relay.Dial(r.Context(), h.realtimeURL, h.apiKey)
	if err != nil {
		log.Error("upstream connect failed", zap.Error(err))
		var ce *relay.ConnectError
		msg := "Failed to connect to OpenAI"
		if errors.As(err, &ce) {
			msg = ce.ClientMessage()
		}
		client.WriteJSON(relay.NewErrorFrame(msg))
		client.Close()
		h.endConversation(sessionID, model.StatusError, log)
		return
	}

	client.WriteJSON(relay.NewStatusFrame("connected", "Connected to OpenAI Realtime API"))

	log.Info("voice session started")
	metrics.IncrementRelayConnections()
	start := time.Now()

	engine := relay.NewEngine(relay.Config{
		SessionID:  sessionID,
		Client:     client,
		Upstream:   upstream,
		Identity:   id,
		Dispatcher: h.dispatcher,
		Recorder:   h.conversations,
		TZ:         h.tz,
		Logger:     log,
	})
	runErr := engine.Run(r.Context())

	status := model.StatusError
	outcome := "error"
	if runErr == nil || errors.Is(runErr, relay.ErrClientGone) {
		status = model.StatusCompleted
		outcome = "completed"
	}
	metrics.DecrementRelayConnections()
	metrics.RelaySessionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	h.endConversation(sessionID, status, log)
	log.Info("voice session ended",
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (h *WSHandler) endConversation(sessionID string, status model.ConversationStatus, log *logger.Logger) {
	// The request context is gone once the client disconnects, so closing
	// the record gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.conversations.End(ctx, sessionID, status); err != nil {
		log.Warn("failed to close conversation record", zap.Error(err))
	}
}
