// Package chat implements the real-time channel broadcast core: the registry
// of live connections per channel, the websocket transport, and the session
// handler that takes one connection from upgrade to close.
package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/logging"
	"github.com/samber/lo"
)

// Peer is the transport handle the registry fans out to. Send must not
// block.
type Peer interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// LiveConnection is one authenticated peer attached to a channel.
type LiveConnection struct {
	ChannelID int64
	Peer      Peer
	User      domain.User
}

// Registry tracks the live connections of every channel. All mutations and
// the iteration of a broadcast run under one mutex.
type Registry struct {
	mu       sync.Mutex
	channels map[int64][]LiveConnection
	byPeer   map[Peer]int64
	closed   bool
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewRegistry returns an empty registry that logs through logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		channels: make(map[int64][]LiveConnection),
		byPeer:   make(map[Peer]int64),
		logger:   logger,
	}
}

// Register attaches peer to channelID. A peer can be attached to at most one
// channel at a time.
func (r *Registry) Register(channelID int64, peer Peer, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.byPeer[peer]; ok {
		return ErrAlreadyRegistered
	}
	r.channels[channelID] = append(r.channels[channelID], LiveConnection{
		ChannelID: channelID,
		Peer:      peer,
		User:      user,
	})
	r.byPeer[peer] = channelID
	r.wg.Add(1)

	r.logger.Debug("chat registry - register - ok",
		logging.Channel(channelID), logging.Conn(peer.ID()), logging.User(user.Username),
		slog.Int("live", len(r.channels[channelID])))
	return nil
}

// Unregister detaches peer from channelID. Unknown pairs are ignored.
func (r *Registry) Unregister(channelID int64, peer Peer) {
	r.mu.Lock()
	removed := r.removeLocked(channelID, peer)
	r.mu.Unlock()

	if removed {
		r.logger.Debug("chat registry - unregister - ok", logging.Channel(channelID), logging.Conn(peer.ID()))
	}
}

// removeLocked drops one entry and the channel bucket once it is empty.
func (r *Registry) removeLocked(channelID int64, peer Peer) bool {
	if ch, ok := r.byPeer[peer]; !ok || ch != channelID {
		return false
	}
	live := r.channels[channelID]
	idx := -1
	for i, lc := range live {
		if lc.Peer == peer {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	live = append(live[:idx], live[idx+1:]...)
	if len(live) == 0 {
		delete(r.channels, channelID)
	} else {
		r.channels[channelID] = live
	}
	delete(r.byPeer, peer)
	r.wg.Done()
	return true
}

// Broadcast hands payload to every peer of channelID except exclude. A peer
// whose send fails is evicted and closed; the failure is logged and returned
// but never stops delivery to the others.
func (r *Registry) Broadcast(channelID int64, payload []byte, exclude Peer) []*DeliveryError {
	var failures []*DeliveryError
	var evicted []Peer

	r.mu.Lock()
	for _, lc := range r.channels[channelID] {
		if exclude != nil && lc.Peer == exclude {
			continue
		}
		if err := lc.Peer.Send(payload); err != nil {
			failures = append(failures, &DeliveryError{
				ChannelID: channelID,
				ConnID:    lc.Peer.ID(),
				User:      lc.User.Username,
				Err:       err,
			})
			evicted = append(evicted, lc.Peer)
		}
	}
	for _, peer := range evicted {
		r.removeLocked(channelID, peer)
	}
	r.mu.Unlock()

	for i, peer := range evicted {
		r.logger.Warn("chat registry - broadcast - peer evicted",
			logging.Channel(channelID), logging.Conn(failures[i].ConnID),
			logging.User(failures[i].User), logging.Err(failures[i].Err))
		if err := peer.Close(); err != nil {
			r.logger.Debug("chat registry - close evicted peer - failed", logging.Conn(peer.ID()), logging.Err(err))
		}
	}
	return failures
}

// DetachUser removes every connection userID holds on channelID and closes
// it. It returns how many were detached.
func (r *Registry) DetachUser(channelID, userID int64) int {
	var detached []Peer

	r.mu.Lock()
	for _, lc := range r.channels[channelID] {
		if lc.User.ID == userID {
			detached = append(detached, lc.Peer)
		}
	}
	for _, peer := range detached {
		r.removeLocked(channelID, peer)
	}
	r.mu.Unlock()

	for _, peer := range detached {
		r.logger.Info("chat registry - detach user - ok", logging.Channel(channelID), logging.Conn(peer.ID()))
		if err := peer.Close(); err != nil {
			r.logger.Debug("chat registry - close detached peer - failed", logging.Conn(peer.ID()), logging.Err(err))
		}
	}
	return len(detached)
}

// Count is the number of live connections attached to channelID.
func (r *Registry) Count(channelID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[channelID])
}

// Channels is the number of channels with at least one live connection.
func (r *Registry) Channels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Snapshot copies the live connections of channelID.
func (r *Registry) Snapshot(channelID int64) []LiveConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LiveConnection(nil), r.channels[channelID]...)
}

// Users lists the usernames currently connected to channelID, without
// duplicates.
func (r *Registry) Users(channelID int64) []string {
	return lo.Uniq(lo.Map(r.Snapshot(channelID), func(lc LiveConnection, _ int) string {
		return lc.User.Username
	}))
}

// Shutdown refuses new registrations, closes every live transport and waits
// for the sessions to unregister, up to timeout.
func (r *Registry) Shutdown(timeout time.Duration) error {
	r.mu.Lock()
	r.closed = true
	peers := lo.Keys(r.byPeer)
	r.mu.Unlock()

	r.logger.Info("chat registry - shutdown - closing connections", slog.Int("count", len(peers)))
	for _, peer := range peers {
		if err := peer.Close(); err != nil {
			r.logger.Debug("chat registry - shutdown - close failed", logging.Conn(peer.ID()), logging.Err(err))
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("chat registry - shutdown - completed")
		return nil
	case <-time.After(timeout):
		r.logger.Warn("chat registry - shutdown - timeout reached, sessions still attached")
		return ErrShutdownTimeout
	}
}
