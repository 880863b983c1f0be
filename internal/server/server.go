package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface delegates to.
type Deps struct {
	Users    *service.Users
	Posts    *service.Posts
	Channels *service.Channels
	Chat     *chat.Handler
	Origins  *OriginPolicy
	Health   Pinger
}

// Server holds the handlers of every route.
type Server struct {
	users       *service.Users
	posts       *service.Posts
	channels    *service.Channels
	chat        *chat.Handler
	origins     *OriginPolicy
	health      Pinger
	serviceName string
	logger      *slog.Logger
}

func New(deps Deps, serviceName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins := deps.Origins
	if origins == nil {
		origins = NewOriginPolicy(nil, logger)
	}
	return &Server{
		users:       deps.Users,
		posts:       deps.Posts,
		channels:    deps.Channels,
		chat:        deps.Chat,
		origins:     origins,
		health:      deps.Health,
		serviceName: serviceName,
		logger:      logger,
	}
}

// Handler returns the routed mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(s.SetupRoutes(),
		Tracing(s.serviceName),
		RequestLogger(s.logger),
		CORS(s.origins),
	)
}
