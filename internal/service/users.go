// Package service holds the application services behind the HTTP surface:
// accounts and tokens, posts, and channel management.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/logging"
	"github.com/Tyrowin/flux/internal/tokenstore"
)

// UserStore is the persistence the Users service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	UserByUsername(ctx context.Context, username string) (domain.User, error)
	ProfileByUsername(ctx context.Context, username string) (domain.Profile, error)
	UpdateProfile(ctx context.Context, p domain.Profile) error
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// ProfileUpdate carries the editable profile fields. Nil fields keep their
// current value.
type ProfileUpdate struct {
	FirstName   *string    `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string    `json:"last_name" validate:"omitempty,max=100"`
	Bio         *string    `json:"bio" validate:"omitempty,max=1000"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

// Users registers accounts, issues tokens and resolves credentials.
type Users struct {
	store   UserStore
	tokens  *auth.Tokens
	refresh tokenstore.Store
	logger  *slog.Logger
}

func NewUsers(store UserStore, tokens *auth.Tokens, refresh tokenstore.Store, logger *slog.Logger) *Users {
	return &Users{store: store, tokens: tokens, refresh: refresh, logger: logger}
}

// Register validates req, hashes the password and creates the account with
// an empty profile.
func (s *Users) Register(ctx context.Context, req auth.RegisterRequest) (domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := auth.ValidateRegister(req); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	role := req.Role
	if role == "" {
		role = string(domain.RoleMember)
	}

	u, err := s.store.CreateUser(ctx, domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		Role:         role,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("users service - register - created", logging.User(u.Username))
	return u, nil
}

// Login checks credentials and issues a token pair. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Users) Login(ctx context.Context, username, password string) (TokenPair, error) {
	u, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return TokenPair{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := auth.ComparePassword(password, u.PasswordHash)
	if err != nil || !ok || !u.IsActive {
		s.logger.Info("users service - login - rejected", logging.User(username))
		return TokenPair{}, domain.ErrInvalidCredentials
	}
	return s.issuePair(ctx, u.Username)
}

// Refresh rotates a refresh token: the presented one is consumed and a new
// pair is issued. A token can be rotated at most once, even by concurrent
// requests.
func (s *Users) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	subject, err := s.refresh.Consume(ctx, claims.ID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		s.logger.Info("users service - refresh - unknown or reused token", logging.User(claims.Subject))
		return TokenPair{}, domain.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if subject != claims.Subject {
		return TokenPair{}, domain.ErrInvalidToken
	}

	u, err := s.store.UserByUsername(ctx, claims.Subject)
	if err != nil || !u.IsActive {
		return TokenPair{}, domain.ErrInvalidToken
	}
	return s.issuePair(ctx, u.Username)
}

// Logout revokes a refresh token. Tokens already revoked or expired from the
// store are accepted.
func (s *Users) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return s.refresh.Revoke(ctx, claims.ID)
}

// Resolve maps an access token to an active user.
func (s *Users) Resolve(ctx context.Context, credential string) (domain.User, error) {
	claims, err := s.tokens.Parse(credential, auth.AccessToken)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	u, err := s.store.UserByUsername(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) || (err == nil && !u.IsActive) {
		return domain.User{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Me reloads the caller's account.
func (s *Users) Me(ctx context.Context, username string) (domain.User, error) {
	return s.store.UserByUsername(ctx, username)
}

func (s *Users) GetProfile(ctx context.Context, username string) (domain.Profile, error) {
	return s.store.ProfileByUsername(ctx, username)
}

// UpdateProfile applies the non-nil fields of upd to the caller's profile.
func (s *Users) UpdateProfile(ctx context.Context, u domain.User, upd ProfileUpdate) (domain.Profile, error) {
	if err := auth.Validate(upd); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	p, err := s.store.ProfileByUsername(ctx, u.Username)
	if err != nil {
		return domain.Profile{}, err
	}
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.Bio != nil {
		p.Bio = *upd.Bio
	}
	if upd.DateOfBirth != nil {
		dob := upd.DateOfBirth.UTC()
		p.DateOfBirth = &dob
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	return s.store.ProfileByUsername(ctx, u.Username)
}

func (s *Users) issuePair(ctx context.Context, username string) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(username)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefresh(username)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.refresh.Save(ctx, refresh.ID, username, s.tokens.RefreshTTL()); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token, TokenType: "bearer"}, nil
}
