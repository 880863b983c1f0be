package chat

import (
	"errors"
	"fmt"
)

// Session failures. Each one resolves to a close of the offending connection.
var (
	ErrAuthentication = errors.New("chat: authentication failed")
	ErrAuthorization  = errors.New("chat: authorization failed")
	ErrParse          = errors.New("chat: malformed frame")
	ErrPersistence    = errors.New("chat: message not persisted")
)

// Registry and transport failures.
var (
	ErrAlreadyRegistered = errors.New("chat: connection already registered")
	ErrRegistryClosed    = errors.New("chat: registry is shut down")
	ErrSendBufferFull    = errors.New("chat: send buffer full")
	ErrConnClosed        = errors.New("chat: connection closed")
	ErrShutdownTimeout   = errors.New("chat: shutdown timed out")
)

// DeliveryError describes one failed send during a broadcast. The peer it
// names has already been evicted when the error is returned.
type DeliveryError struct {
	ChannelID int64
	ConnID    string
	User      string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s (%s) on channel %d: %v", e.ConnID, e.User, e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
