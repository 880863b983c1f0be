package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/logging"
)

const defaultPostLimit = 100

type PostStore interface {
	CreatePost(ctx context.Context, userID int64, title, content string) (domain.Post, error)
	PostByID(ctx context.Context, id int64) (domain.Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]domain.Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) (domain.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

type PostInput struct {
	Title   string `json:"title" validate:"max=200"`
	Content string `json:"content" validate:"required"`
}

// PostPatch updates only the fields that are set.
type PostPatch struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content" validate:"omitempty,min=1"`
}

type Posts struct {
	store  PostStore
	logger *slog.Logger
}

func NewPosts(store PostStore, logger *slog.Logger) *Posts {
	return &Posts{store: store, logger: logger}
}

func (s *Posts) Create(ctx context.Context, author domain.User, in PostInput) (domain.Post, error) {
	if err := auth.Validate(in); err != nil {
		return domain.Post{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	p, err := s.store.CreatePost(ctx, author.ID, in.Title, in.Content)
	if err != nil {
		return domain.Post{}, err
	}
	s.logger.Info("posts service - create - ok", logging.User(author.Username), slog.Int64("post_id", p.ID))
	return p, nil
}

func (s *Posts) Get(ctx context.Context, id int64) (domain.Post, error) {
	return s.store.PostByID(ctx, id)
}

// List returns posts newest first. A non-positive limit selects the default
// page size.
func (s *Posts) List(ctx context.Context, limit, offset int) ([]domain.Post, error) {
	if limit <= 0 || limit > defaultPostLimit {
		limit = defaultPostLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListPosts(ctx, limit, offset)
}

// Update lets the author change title or content.
func (s *Posts) Update(ctx context.Context, caller domain.User, id int64, patch PostPatch) (domain.Post, error) {
	if err := auth.Validate(patch); err != nil {
		return domain.Post{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	p, err := s.authored(ctx, caller, id)
	if err != nil {
		return domain.Post{}, err
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	return s.store.UpdatePost(ctx, id, p.Title, p.Content)
}

func (s *Posts) Delete(ctx context.Context, caller domain.User, id int64) error {
	if _, err := s.authored(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return err
	}
	s.logger.Info("posts service - delete - ok", logging.User(caller.Username), slog.Int64("post_id", id))
	return nil
}

func (s *Posts) authored(ctx context.Context, caller domain.User, id int64) (domain.Post, error) {
	p, err := s.store.PostByID(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if p.UserID != caller.ID {
		return domain.Post{}, domain.ErrForbidden
	}
	return p, nil
}
