package server

import (
	"time"

	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/samber/lo"
)

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
	Role     string `json:"role"`
}

func newUserView(u domain.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, IsActive: u.IsActive, Role: u.Role}
}

type profileView struct {
	Username    string     `json:"username"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Bio         string     `json:"bio"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newProfileView(p domain.Profile) profileView {
	return profileView{
		Username:    p.Username,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Bio:         p.Bio,
		DateOfBirth: p.DateOfBirth,
		UpdatedAt:   p.UpdatedAt,
	}
}

type postView struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPostView(p domain.Post) postView {
	return postView{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		UserID:    p.UserID,
		Username:  p.Username,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type channelView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

func newChannelView(ch domain.Channel) channelView {
	return channelView{
		ID:          ch.ID,
		Name:        ch.Name,
		Description: ch.Description,
		IsPublic:    ch.IsPublic,
		CreatedAt:   ch.CreatedAt,
		CreatedBy:   ch.CreatedByName,
	}
}

type memberView struct {
	User string `json:"user"`
	Role string `json:"role"`
}

type channelDetailView struct {
	channelView
	Members  []memberView    `json:"members"`
	Messages []chat.Outbound `json:"messages"`
}

// Messages use the same shape as websocket frames.
func newChannelDetailView(d domain.ChannelDetail) channelDetailView {
	return channelDetailView{
		channelView: newChannelView(d.Channel),
		Members: lo.Map(d.Members, func(m domain.ChannelMember, _ int) memberView {
			return memberView{User: m.Username, Role: string(m.Role)}
		}),
		Messages: lo.Map(d.Messages, func(m domain.Message, _ int) chat.Outbound {
			return chat.NewOutbound(m)
		}),
	}
}

func channelViews(chs []domain.Channel) []channelView {
	return lo.Map(chs, func(ch domain.Channel, _ int) channelView { return newChannelView(ch) })
}

func postViews(posts []domain.Post) []postView {
	return lo.Map(posts, func(p domain.Post, _ int) postView { return newPostView(p) })
}
