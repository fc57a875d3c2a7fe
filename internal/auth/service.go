// Package auth issues and validates the JWT pair used by the API: a short
// lived access token and a rotating refresh token whose sha256 fingerprint
// is stored on the user.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/btcguess/guess-engine/internal/model"
	"github.com/btcguess/guess-engine/internal/store"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password pair.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken is returned for an expired, malformed or revoked token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Tokens is a freshly signed access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Service handles registration, login and token lifecycle.
type Service struct {
	users         store.UserStore
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewService creates an auth service with 15m access and 7d refresh TTLs.
func NewService(users store.UserStore, accessSecret, refreshSecret string) *Service {
	return &Service{
		users:         users,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     15 * time.Minute,
		refreshTTL:    7 * 24 * time.Hour,
	}
}

// Register creates a user with a bcrypt password hash and signs in.
func (s *Service) Register(ctx context.Context, email, name, password string) (*model.User, *Tokens, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		return nil, nil, err
	}

	tokens, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, tokens, nil
}

// Login verifies the password and signs in.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *Tokens, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	return u, tokens, nil
}

// Refresh validates a refresh token against the stored fingerprint and
// rotates the pair. An old refresh token stops working the moment a new one
// is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.parse(refreshToken, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if u.RefreshTokenHash == "" {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare(
		[]byte(u.RefreshTokenHash), []byte(fingerprint(refreshToken))) != 1 {
		return nil, ErrInvalidToken
	}

	return s.issueTokens(ctx, u)
}

// Logout revokes the user's refresh token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.users.SetRefreshTokenHash(ctx, userID, "")
}

// ParseAccess validates an access token and returns its claims.
func (s *Service) ParseAccess(tokenString string) (*Claims, error) {
	return s.parse(tokenString, s.accessSecret)
}

func (s *Service) issueTokens(ctx context.Context, u *model.User) (*Tokens, error) {
	now := time.Now()

	access, err := s.sign(&Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, s.accessSecret)
	if err != nil {
		return nil, err
	}

	// The jti keeps pairs issued in the same second distinct, so rotation
	// always invalidates the previous refresh token.
	refresh, err := s.sign(&Claims{
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, s.refreshSecret)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetRefreshTokenHash(ctx, u.ID, fingerprint(refresh)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// fingerprint hashes a token for at-rest storage. sha256 rather than bcrypt:
// a signed JWT exceeds bcrypt's 72-byte input limit.
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
