package chat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/flux/internal/logging"
	"github.com/Tyrowin/flux/internal/telemetry"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
)

// HandlerConfig tunes every session the handler starts.
type HandlerConfig struct {
	Conn              ConnConfig
	RateLimitBurst    int
	RateLimitInterval time.Duration
}

// Deps are the collaborators a session consults.
type Deps struct {
	Identities  IdentityResolver
	Memberships MembershipStore
	Messages    MessageStore
	Registry    *Registry
	// CheckOrigin validates the Origin header of upgrade requests. Nil
	// accepts same-origin requests only.
	CheckOrigin func(r *http.Request) bool
}

// Handler is the websocket entry point of a channel.
type Handler struct {
	identities  IdentityResolver
	memberships MembershipStore
	messages    MessageStore
	registry    *Registry
	upgrader    websocket.Upgrader
	cfg         HandlerConfig
	logger      *slog.Logger
	tracer      trace.Tracer

	stateHook func(connID string, s State)
}

// NewHandler builds the websocket endpoint from its collaborators.
func NewHandler(deps Deps, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		identities:  deps.Identities,
		memberships: deps.Memberships,
		messages:    deps.Messages,
		registry:    deps.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     deps.CheckOrigin,
		},
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.Tracer("github.com/Tyrowin/flux/internal/chat"),
	}
}

// ServeChannel upgrades the request and runs the session for channelID until
// it closes. The credential is checked after the upgrade so failures surface
// as a policy-violation close rather than an HTTP status.
func (h *Handler) ServeChannel(w http.ResponseWriter, r *http.Request, channelID int64, credential string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("chat handler - upgrade - failed", logging.Channel(channelID), logging.Err(err))
		return
	}

	conn := NewConn(ws, h.cfg.Conn, h.logger)
	newSession(h, conn, channelID).run(r.Context(), credential)
}
