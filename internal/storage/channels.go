package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
)

const channelSelect = `
	SELECT c.id, c.name, c.description, c.is_public, c.created_by, u.username, c.created_at
	FROM channels c
	JOIN users u ON u.id = c.created_by`

// CreateChannel inserts the channel and makes its creator the first admin.
func (s *Store) CreateChannel(ctx context.Context, ch domain.Channel) (domain.Channel, error) {
	now := toMillis(time.Now())
	var id int64
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.insert(ctx, `
			INSERT INTO channels (name, description, is_public, created_by, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			ch.Name, ch.Description, ch.IsPublic, ch.CreatedBy, now,
		)
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		return s.AddMember(ctx, id, ch.CreatedBy, domain.RoleAdmin)
	})
	if err != nil {
		return domain.Channel{}, err
	}
	return s.GetChannel(ctx, id)
}

// GetChannel returns domain.ErrChannelNotFound for unknown ids.
func (s *Store) GetChannel(ctx context.Context, id int64) (domain.Channel, error) {
	ch, err := scanChannel(s.queryRow(ctx, channelSelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, err
}

// ChannelsForUser lists the channels userID belongs to, oldest first.
func (s *Store) ChannelsForUser(ctx context.Context, userID int64) ([]domain.Channel, error) {
	return s.listChannels(ctx, channelSelect+`
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.id`, userID)
}

// SearchChannels matches names case-insensitively among public channels and
// the private channels userID belongs to.
func (s *Store) SearchChannels(ctx context.Context, userID int64, query string) ([]domain.Channel, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.listChannels(ctx, channelSelect+`
		WHERE LOWER(c.name) LIKE ?
		  AND (c.is_public = ? OR EXISTS (
		      SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = ?))
		ORDER BY c.id`, pattern, true, userID)
}

func (s *Store) listChannels(ctx context.Context, query string, args ...any) ([]domain.Channel, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func scanChannel(row scanner) (domain.Channel, error) {
	var (
		ch      domain.Channel
		created int64
	)
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.IsPublic, &ch.CreatedBy, &ch.CreatedByName, &created); err != nil {
		return domain.Channel{}, err
	}
	ch.CreatedAt = fromMillis(created)
	return ch, nil
}

// IsMember reports whether userID holds any role in channelID.
func (s *Store) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	_, err := s.MemberRole(ctx, channelID, userID)
	if errors.Is(err, domain.ErrNotMember) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemberRole returns domain.ErrNotMember when the pair has no membership.
func (s *Store) MemberRole(ctx context.Context, channelID, userID int64) (domain.Role, error) {
	var role string
	err := s.queryRow(ctx, `SELECT role FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return domain.Role(role), nil
}

// AddMember returns domain.ErrAlreadyMember when the pair already exists.
func (s *Store) AddMember(ctx context.Context, channelID, userID int64, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}
	_, err := s.exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		channelID, userID, string(role), toMillis(time.Now()),
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership unless it belongs to the last admin of
// the channel. The check and the delete are one statement so two admins
// leaving concurrently cannot both succeed.
func (s *Store) RemoveMember(ctx context.Context, channelID, userID int64) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if s.dialect == Postgres {
			var id int64
			err := s.queryRow(ctx, `SELECT id FROM channels WHERE id = ? FOR UPDATE`, channelID).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrChannelNotFound
			}
			if err != nil {
				return fmt.Errorf("lock channel: %w", err)
			}
		}

		res, err := s.exec(ctx, `
			DELETE FROM channel_members
			WHERE channel_id = ? AND user_id = ?
			  AND (role <> 'admin' OR (
			      SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND role = 'admin') > 1)`,
			channelID, userID, channelID,
		)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		if _, err := s.MemberRole(ctx, channelID, userID); err != nil {
			return err
		}
		return domain.ErrSoleAdmin
	})
}

// Members lists a channel's members in join order.
func (s *Store) Members(ctx context.Context, channelID int64) ([]domain.ChannelMember, error) {
	rows, err := s.query(ctx, `
		SELECT m.channel_id, m.user_id, u.username, m.role, m.joined_at
		FROM channel_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.joined_at, m.user_id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelMember
	for rows.Next() {
		var (
			m      domain.ChannelMember
			role   string
			joined int64
		)
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Username, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.JoinedAt = fromMillis(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}
