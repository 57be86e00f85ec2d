// Package auth issues and validates the member session tokens accepted by the
// authenticated chat endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/utils"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingUser  = errors.New("user id is required")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// Claims identify the member behind a token.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenRequest is the body of POST /api/auth/token.
type TokenRequest struct {
	UserID string `json:"userId"`
}

// TokenResponse carries a freshly issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service signs tokens with an HMAC secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService creates a token service from configuration.
func NewService(cfg config.AuthConfig) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrNoSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(cfg.Secret), ttl: ttl, issuer: cfg.Issuer, now: time.Now}, nil
}

// Issue signs a token for userID.
func (s *Service) Issue(userID string) (TokenResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return TokenResponse{}, ErrMissingUser
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return TokenResponse{Token: signed, ExpiresAt: expires}, nil
}

// Validate parses and verifies a signed token.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type ctxKey struct{}

// UserID returns the member id stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid "Bearer <token>" header.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.serveAs(w, r, next, token)
	})
}

// Optional identifies the member when a bearer token is present and lets
// anonymous requests through. A presented but invalid token is rejected.
func (s *Service) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		s.serveAs(w, r, next, token)
	})
}

func (s *Service) serveAs(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	claims, err := s.Validate(token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	ctx := context.WithValue(r.Context(), ctxKey{}, claims.UserID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	token = strings.TrimSpace(token)
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}
