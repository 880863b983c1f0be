package chat

import (
	"context"

	"github.com/Tyrowin/flux/internal/domain"
)

//go:generate mockgen -source=deps.go -destination=mocks/mock_deps.go -package=mocks

// IdentityResolver turns the credential presented at connect time into a
// user. Any error is treated as an authentication failure.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (domain.User, error)
}

// MembershipStore answers whether a user may attach to a channel.
// GetChannel returns domain.ErrChannelNotFound for unknown ids.
type MembershipStore interface {
	GetChannel(ctx context.Context, id int64) (domain.Channel, error)
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
}

// MessageStore durably records a message and assigns its id and timestamp.
type MessageStore interface {
	CreateMessage(ctx context.Context, channelID, userID int64, content string) (domain.Message, error)
}
