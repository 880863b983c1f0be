package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
)

// CreateMessage persists a message and returns it with its assigned id,
// timestamp and author name.
func (s *Store) CreateMessage(ctx context.Context, channelID, userID int64, content string) (domain.Message, error) {
	now := toMillis(time.Now())
	msg := domain.Message{
		ChannelID: channelID,
		UserID:    userID,
		Content:   content,
		CreatedAt: fromMillis(now),
	}
	err := s.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.insert(ctx, `
			INSERT INTO messages (channel_id, user_id, content, created_at)
			VALUES (?, ?, ?, ?)`,
			channelID, userID, content, now,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		msg.ID = id
		if err := s.queryRow(ctx, `SELECT username FROM users WHERE id = ?`, userID).Scan(&msg.Username); err != nil {
			return fmt.Errorf("load message author: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Messages returns the channel history oldest first.
func (s *Store) Messages(ctx context.Context, channelID int64) ([]domain.Message, error) {
	rows, err := s.query(ctx, `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.created_at, m.id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Username, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
