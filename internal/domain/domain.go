// Package domain holds the entities shared by the storage, service and chat
// layers. It carries no transport or persistence logic.
package domain

import "time"

// Role is a member's standing inside a channel.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is one of the known channel roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds the optional public details of a user.
type Profile struct {
	UserID      int64
	Username    string
	FirstName   string
	LastName    string
	Bio         string
	DateOfBirth *time.Time
	UpdatedAt   time.Time
}

// Post is a user-authored article.
type Post struct {
	ID        int64
	UserID    int64
	Username  string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is a named group-chat scope.
type Channel struct {
	ID            int64
	Name          string
	Description   string
	IsPublic      bool
	CreatedBy     int64
	CreatedByName string
	CreatedAt     time.Time
}

// ChannelMember links a user to a channel with a role. The pair
// (ChannelID, UserID) is unique.
type ChannelMember struct {
	ChannelID int64
	UserID    int64
	Username  string
	Role      Role
	JoinedAt  time.Time
}

// Message is an immutable chat entry. ID and CreatedAt are assigned by the
// store when the message is persisted.
type Message struct {
	ID        int64
	ChannelID int64
	UserID    int64
	Username  string
	Content   string
	CreatedAt time.Time
}

// ChannelDetail is a channel together with its members and history.
type ChannelDetail struct {
	Channel
	Members  []ChannelMember
	Messages []Message
}
