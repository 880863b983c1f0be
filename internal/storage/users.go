package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
)

const userColumns = `id, username, email, password_hash, is_active, role, created_at, updated_at`

// CreateUser inserts the account and its empty profile in one transaction.
func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	if u.Role == "" {
		u.Role = string(domain.RoleMember)
	}
	u.CreatedAt, u.UpdatedAt = now, now

	err := s.WithTx(ctx, func(ctx context.Context) error {
		id, err := s.insert(ctx, `
			INSERT INTO users (username, email, password_hash, is_active, role, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.Email, u.PasswordHash, u.IsActive, u.Role, toMillis(now), toMillis(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrUsernameTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}
		u.ID = id

		if _, err := s.exec(ctx, `INSERT INTO profiles (user_id, updated_at) VALUES (?, ?)`, id, toMillis(now)); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromMillis(toMillis(now))
	u.UpdatedAt = u.CreatedAt
	return u, nil
}

// UserByUsername returns domain.ErrUserNotFound for unknown names.
func (s *Store) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// UserByID returns domain.ErrUserNotFound for unknown ids.
func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.Role, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

// ProfileByUsername returns the profile joined with its owner's name.
func (s *Store) ProfileByUsername(ctx context.Context, username string) (domain.Profile, error) {
	var (
		p       domain.Profile
		dob     sql.NullInt64
		updated int64
	)
	err := s.queryRow(ctx, `
		SELECT p.user_id, u.username, p.first_name, p.last_name, p.bio, p.date_of_birth, p.updated_at
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE u.username = ?`, username,
	).Scan(&p.UserID, &p.Username, &p.FirstName, &p.LastName, &p.Bio, &dob, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, err
	}
	if dob.Valid {
		t := fromMillis(dob.Int64)
		p.DateOfBirth = &t
	}
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

// UpdateProfile overwrites the editable profile fields of p.UserID.
func (s *Store) UpdateProfile(ctx context.Context, p domain.Profile) error {
	var dob sql.NullInt64
	if p.DateOfBirth != nil {
		dob = sql.NullInt64{Int64: toMillis(*p.DateOfBirth), Valid: true}
	}
	res, err := s.exec(ctx, `
		UPDATE profiles
		SET first_name = ?, last_name = ?, bio = ?, date_of_birth = ?, updated_at = ?
		WHERE user_id = ?`,
		p.FirstName, p.LastName, p.Bio, dob, toMillis(time.Now()), p.UserID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
