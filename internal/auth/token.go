package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	ErrWrongTokenType = errors.New("wrong token type")
	ErrMissingSubject = errors.New("subject not found in token")
)

// Claims is the payload of every token the service signs. Subject carries the
// username, ID the token id used to track refresh tokens.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Issued is a signed token with the id and expiry it was minted with.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokens returns a token service signing with secret.
func NewTokens(secret, issuer string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL is the lifetime given to refresh tokens.
func (t *Tokens) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccess signs an access token for username.
func (t *Tokens) IssueAccess(username string) (Issued, error) {
	return t.issue(username, AccessToken, t.accessTTL)
}

// IssueRefresh signs a refresh token for username.
func (t *Tokens) IssueRefresh(username string) (Issued, error) {
	return t.issue(username, RefreshToken, t.refreshTTL)
}

func (t *Tokens) issue(username string, typ TokenType, ttl time.Duration) (Issued, error) {
	now := t.now()
	expires := now.Add(ttl)
	id := uuid.NewString()

	claims := &Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        id,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return Issued{Token: signed, ID: id, ExpiresAt: expires}, nil
}

// Parse validates signature, issuer, expiry and the expected token type.
func (t *Tokens) Parse(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
