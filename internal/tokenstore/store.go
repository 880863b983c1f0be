// Package tokenstore tracks issued refresh tokens so they can be rotated and
// revoked before they expire.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown, revoked or expired token ids.
var ErrNotFound = errors.New("refresh token not found")

// Store keeps refresh token ids mapped to the username they were issued for.
type Store interface {
	Save(ctx context.Context, id, subject string, ttl time.Duration) error
	Lookup(ctx context.Context, id string) (string, error)
	// Consume removes id and returns its subject in one atomic step. Of
	// several concurrent consumers of the same id at most one succeeds.
	Consume(ctx context.Context, id string) (string, error)
	Revoke(ctx context.Context, id string) error
	Close() error
}
