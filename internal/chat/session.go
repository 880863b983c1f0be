package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/logging"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is a step of a session's lifecycle. Closed is reachable from every
// other state and is terminal.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthorizing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthorizing:
		return "authorizing"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session drives one connection. Its receive loop is sequential: a frame is
// persisted and broadcast before the next one is read.
type session struct {
	h         *Handler
	conn      *Conn
	channelID int64
	user      domain.User
	state     State
	budget    *frameBudget
	logger    *slog.Logger

	closeCode   int
	closeReason string

	registered     bool
	unregisterOnce sync.Once
}

func newSession(h *Handler, conn *Conn, channelID int64) *session {
	return &session{
		h:         h,
		conn:      conn,
		channelID: channelID,
		state:     StateConnecting,
		budget:    newFrameBudget(h.cfg.RateLimitBurst, h.cfg.RateLimitInterval),
		logger:    h.logger.With(logging.Channel(channelID), logging.Conn(conn.ID()), logging.RemoteAddr(conn.RemoteAddr())),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (s *session) setState(next State) {
	s.state = next
	s.logger.Debug("chat session - transition - "+next.String(), logging.State(next.String()))
	if s.h.stateHook != nil {
		s.h.stateHook(s.conn.ID(), next)
	}
}

func (s *session) run(ctx context.Context, credential string) {
	defer s.finish()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("chat session - run - panic recovered", slog.Any("panic", rec))
			s.closeCode, s.closeReason = websocket.CloseInternalServerErr, "internal error"
		}
	}()

	s.setState(StateAuthenticating)
	if !s.authenticate(ctx, credential) {
		return
	}
	s.setState(StateAuthorizing)
	if !s.authorize(ctx) {
		return
	}
	if !s.register() {
		return
	}
	s.setState(StateActive)
	s.conn.Start()
	s.receive(ctx)
}

func (s *session) authenticate(ctx context.Context, credential string) bool {
	user, err := s.h.identities.Resolve(ctx, credential)
	if err != nil {
		s.fail(websocket.ClosePolicyViolation, "", fmt.Errorf("%w: %v", ErrAuthentication, err))
		return false
	}
	s.user = user
	s.logger = s.logger.With(logging.User(user.Username))
	return true
}

func (s *session) authorize(ctx context.Context) bool {
	ch, err := s.h.memberships.GetChannel(ctx, s.channelID)
	if errors.Is(err, domain.ErrChannelNotFound) {
		s.fail(websocket.ClosePolicyViolation, "", fmt.Errorf("%w: %v", ErrAuthorization, err))
		return false
	}
	if err != nil {
		s.fail(websocket.CloseInternalServerErr, "internal error", fmt.Errorf("load channel: %w", err))
		return false
	}

	ok, err := s.h.memberships.IsMember(ctx, ch.ID, s.user.ID)
	if err != nil {
		s.fail(websocket.CloseInternalServerErr, "internal error", fmt.Errorf("check membership: %w", err))
		return false
	}
	if !ok {
		s.fail(websocket.ClosePolicyViolation, "", fmt.Errorf("%w: %w", ErrAuthorization, domain.ErrNotMember))
		return false
	}
	return true
}

func (s *session) register() bool {
	if err := s.h.registry.Register(s.channelID, s.conn, s.user); err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrRegistryClosed) {
			code = websocket.CloseGoingAway
		}
		s.fail(code, "", err)
		return false
	}
	s.registered = true
	return true
}

func (s *session) receive(ctx context.Context) {
	for {
		raw, err := s.conn.ReadFrame()
		if err != nil {
			s.logReadError(err)
			return
		}
		if !s.budget.allow() {
			s.logger.Warn("chat session - receive - rate limit exceeded, frame discarded",
				slog.Int("burst", s.h.cfg.RateLimitBurst), slog.Duration("interval", s.h.cfg.RateLimitInterval),
				slog.Int("dropped", s.budget.dropped))
			continue
		}
		if !s.handleFrame(ctx, raw) {
			return
		}
	}
}

// handleFrame persists one inbound frame and fans it out. It reports whether
// the session should keep reading.
func (s *session) handleFrame(ctx context.Context, raw []byte) bool {
	content, err := ParseInbound(raw)
	if err != nil {
		s.fail(websocket.CloseUnsupportedData, "invalid frame", err)
		return false
	}

	ctx, span := s.h.tracer.Start(ctx, "chat.message",
		trace.WithAttributes(attribute.Int64("chat.channel_id", s.channelID), attribute.String("chat.user", s.user.Username)))
	defer span.End()

	msg, err := s.h.messages.CreateMessage(ctx, s.channelID, s.user.ID, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist message")
		s.fail(websocket.CloseInternalServerErr, "internal error", fmt.Errorf("%w: %v", ErrPersistence, err))
		return false
	}
	if msg.Username == "" {
		msg.Username = s.user.Username
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		span.RecordError(err)
		s.fail(websocket.CloseInternalServerErr, "internal error", err)
		return false
	}

	failures := s.h.registry.Broadcast(s.channelID, payload, nil)
	span.SetAttributes(attribute.Int64("chat.message_id", msg.ID), attribute.Int("chat.failed_deliveries", len(failures)))
	s.logger.Debug("chat session - message - broadcast", logging.MessageID(msg.ID), slog.Int("failed", len(failures)))
	return true
}

func (s *session) fail(code int, reason string, err error) {
	s.closeCode, s.closeReason = code, reason
	s.logger.Info("chat session - "+s.state.String()+" - closing", slog.Int("close_code", code), logging.Err(err))
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.closeCode = websocket.CloseMessageTooBig
		s.logger.Warn("chat session - receive - frame exceeded max size", slog.Int64("limit", s.conn.cfg.MaxMessageSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.logger.Debug("chat session - receive - peer closed", logging.Err(err))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		s.logger.Debug("chat session - receive - transport closed", logging.Err(err))
	default:
		s.logger.Warn("chat session - receive - read failed", logging.Err(err))
	}
}

// finish runs on every path out of run: unregister exactly once, close the
// transport and wait for the write pump.
func (s *session) finish() {
	s.unregister()
	_ = s.conn.CloseWith(s.closeCode, s.closeReason)
	s.conn.Wait()
	s.setState(StateClosed)
}

func (s *session) unregister() {
	if !s.registered {
		return
	}
	s.unregisterOnce.Do(func() {
		s.h.registry.Unregister(s.channelID, s.conn)
	})
}
