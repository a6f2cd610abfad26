// Package session keeps short-lived admin sessions in Redis.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when AdminSessions is built with a non-positive ttl.
const DefaultTTL = 30 * time.Minute

// ErrSessionNotFound is returned for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found")

// AdminSessions maps opaque tokens to admin user ids.
type AdminSessions struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewAdminSessions returns sessions stored under prefix with the given ttl.
func NewAdminSessions(client redis.Cmdable, prefix string, ttl time.Duration) *AdminSessions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AdminSessions{client: client, prefix: prefix, ttl: ttl}
}

func (s *AdminSessions) key(token string) string {
	return fmt.Sprintf("%sadmin_session:%s", s.prefix, token)
}

// Issue creates a session for adminID and returns its token.
func (s *AdminSessions) Issue(ctx context.Context, adminID string) (string, error) {
	if adminID == "" {
		return "", errors.New("admin id is required")
	}
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), adminID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("issue admin session: %w", err)
	}
	return token, nil
}

// Lookup returns the admin id behind token.
func (s *AdminSessions) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionNotFound
	}
	adminID, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup admin session: %w", err)
	}
	return adminID, nil
}

// Revoke ends the session. Revoking an unknown token is not an error.
func (s *AdminSessions) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke admin session: %w", err)
	}
	return nil
}

// Ping checks the session store connection.
func (s *AdminSessions) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
