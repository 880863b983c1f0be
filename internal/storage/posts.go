package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
)

const postSelect = `
	SELECT p.id, p.user_id, u.username, p.title, p.content, p.created_at, p.updated_at
	FROM posts p
	JOIN users u ON u.id = p.user_id`

func (s *Store) CreatePost(ctx context.Context, userID int64, title, content string) (domain.Post, error) {
	now := toMillis(time.Now())
	id, err := s.insert(ctx, `
		INSERT INTO posts (user_id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, title, content, now, now,
	)
	if err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return s.PostByID(ctx, id)
}

// PostByID returns domain.ErrPostNotFound for unknown ids.
func (s *Store) PostByID(ctx context.Context, id int64) (domain.Post, error) {
	p, err := scanPost(s.queryRow(ctx, postSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return p, err
}

// ListPosts returns posts newest first.
func (s *Store) ListPosts(ctx context.Context, limit, offset int) ([]domain.Post, error) {
	rows, err := s.query(ctx, postSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) UpdatePost(ctx context.Context, id int64, title, content string) (domain.Post, error) {
	res, err := s.exec(ctx, `UPDATE posts SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		title, content, toMillis(time.Now()), id)
	if err != nil {
		return domain.Post{}, fmt.Errorf("update post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return s.PostByID(ctx, id)
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (domain.Post, error) {
	var (
		p                domain.Post
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Title, &p.Content, &created, &updated); err != nil {
		return domain.Post{}, err
	}
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}
