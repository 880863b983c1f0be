package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/logging"
	"github.com/Tyrowin/flux/internal/telemetry"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChannelStore is the persistence the channels service needs.
type ChannelStore interface {
	CreateChannel(ctx context.Context, ch domain.Channel) (domain.Channel, error)
	GetChannel(ctx context.Context, id int64) (domain.Channel, error)
	ChannelsForUser(ctx context.Context, userID int64) ([]domain.Channel, error)
	SearchChannels(ctx context.Context, userID int64, query string) ([]domain.Channel, error)
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
	AddMember(ctx context.Context, channelID, userID int64, role domain.Role) error
	RemoveMember(ctx context.Context, channelID, userID int64) error
	Members(ctx context.Context, channelID int64) ([]domain.ChannelMember, error)
	Messages(ctx context.Context, channelID int64) ([]domain.Message, error)
	CreateMessage(ctx context.Context, channelID, userID int64, content string) (domain.Message, error)
}

// Hub is the live side of a channel. Broadcast fans a serialized frame out
// to its connections; DetachUser drops the ones a departing member holds.
type Hub interface {
	Broadcast(channelID int64, payload []byte, exclude chat.Peer) []*chat.DeliveryError
	DetachUser(channelID, userID int64) int
}

// ChannelInput is the body of a channel creation request.
type ChannelInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPublic    *bool  `json:"is_public"`
}

// MessageInput is the body of a REST-posted message.
type MessageInput struct {
	Content string `json:"content" validate:"max=4096"`
}

// Channels manages channels, memberships and REST-posted messages.
type Channels struct {
	store  ChannelStore
	hub    Hub
	logger *slog.Logger
	tracer trace.Tracer
}

// NewChannels wires the service to its store and the live hub.
func NewChannels(store ChannelStore, hub Hub, logger *slog.Logger) *Channels {
	return &Channels{
		store:  store,
		hub:    hub,
		logger: logger,
		tracer: telemetry.Tracer("github.com/Tyrowin/flux/internal/service"),
	}
}

// Create stores the channel with the caller as its first admin.
func (s *Channels) Create(ctx context.Context, caller domain.User, in ChannelInput) (domain.Channel, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := auth.Validate(in); err != nil {
		return domain.Channel{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ch, err := s.store.CreateChannel(ctx, domain.Channel{
		Name:        in.Name,
		Description: in.Description,
		IsPublic:    lo.FromPtrOr(in.IsPublic, true),
		CreatedBy:   caller.ID,
	})
	if err != nil {
		return domain.Channel{}, err
	}
	s.logger.Info("channels service - create - ok", logging.Channel(ch.ID), logging.User(caller.Username))
	return ch, nil
}

// ListForUser returns the channels the caller belongs to.
func (s *Channels) ListForUser(ctx context.Context, caller domain.User) ([]domain.Channel, error) {
	return s.store.ChannelsForUser(ctx, caller.ID)
}

// Search matches public channels and the caller's private channels by name.
func (s *Channels) Search(ctx context.Context, caller domain.User, query string) ([]domain.Channel, error) {
	found, err := s.store.SearchChannels(ctx, caller.ID, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	return lo.UniqBy(found, func(ch domain.Channel) int64 { return ch.ID }), nil
}

// Detail returns the channel with members and history to one of its members.
func (s *Channels) Detail(ctx context.Context, caller domain.User, id int64) (domain.ChannelDetail, error) {
	ch, err := s.memberChannel(ctx, caller, id)
	if err != nil {
		return domain.ChannelDetail{}, err
	}
	members, err := s.store.Members(ctx, id)
	if err != nil {
		return domain.ChannelDetail{}, err
	}
	messages, err := s.store.Messages(ctx, id)
	if err != nil {
		return domain.ChannelDetail{}, err
	}
	return domain.ChannelDetail{Channel: ch, Members: members, Messages: messages}, nil
}

// PostMessage persists a message from a member and broadcasts it to the
// channel's live connections like a websocket frame would be.
func (s *Channels) PostMessage(ctx context.Context, caller domain.User, id int64, in MessageInput) (domain.Message, error) {
	if err := auth.Validate(in); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if _, err := s.memberChannel(ctx, caller, id); err != nil {
		return domain.Message{}, err
	}

	ctx, span := s.tracer.Start(ctx, "channels.post_message", trace.WithAttributes(attribute.Int64("chat.channel_id", id)))
	defer span.End()

	msg, err := s.store.CreateMessage(ctx, id, caller.ID, in.Content)
	if err != nil {
		span.RecordError(err)
		return domain.Message{}, err
	}
	payload, err := chat.EncodeMessage(msg)
	if err != nil {
		return domain.Message{}, err
	}
	if failures := s.hub.Broadcast(id, payload, nil); len(failures) > 0 {
		s.logger.Warn("channels service - post message - partial delivery",
			logging.Channel(id), logging.MessageID(msg.ID), slog.Int("failed", len(failures)))
	}
	return msg, nil
}

// Join adds the caller to a public channel as a plain member.
func (s *Channels) Join(ctx context.Context, caller domain.User, id int64) error {
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return err
	}
	if !ch.IsPublic {
		return domain.ErrChannelPrivate
	}
	if err := s.store.AddMember(ctx, id, caller.ID, domain.RoleMember); err != nil {
		return err
	}
	s.logger.Info("channels service - join - ok", logging.Channel(id), logging.User(caller.Username))
	return nil
}

// Leave removes the caller from the channel unless they are its only admin,
// and closes any live connections they still hold on it.
func (s *Channels) Leave(ctx context.Context, caller domain.User, id int64) error {
	if _, err := s.store.GetChannel(ctx, id); err != nil {
		return err
	}
	err := s.store.RemoveMember(ctx, id, caller.ID)
	if errors.Is(err, domain.ErrSoleAdmin) {
		s.logger.Info("channels service - leave - sole admin refused", logging.Channel(id), logging.User(caller.Username))
	}
	if err != nil {
		return err
	}
	detached := s.hub.DetachUser(id, caller.ID)
	s.logger.Info("channels service - leave - ok", logging.Channel(id), logging.User(caller.Username),
		slog.Int("detached", detached))
	return nil
}

func (s *Channels) memberChannel(ctx context.Context, caller domain.User, id int64) (domain.Channel, error) {
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return domain.Channel{}, err
	}
	ok, err := s.store.IsMember(ctx, id, caller.ID)
	if err != nil {
		return domain.Channel{}, err
	}
	if !ok {
		return domain.Channel{}, domain.ErrNotMember
	}
	return ch, nil
}
