// AngelaMos | 2026
// challenge.go

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kyora-app/kyora-backend/internal/core"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

const challengePrefix = "otp:challenge:"

// challengeStore keeps one-time codes in Redis, hashed, with the code TTL
// as the key TTL. Expiry is therefore enforced by Redis itself; a missing
// key and an expired key are the same case.
type challengeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func newChallengeStore(client *redis.Client, ttl time.Duration) *challengeStore {
	return &challengeStore{client: client, ttl: ttl}
}

func (s *challengeStore) Create(
	ctx context.Context,
	email, code string,
) (string, error) {
	challengeID := uuid.NewString()
	key := challengePrefix + challengeID

	// Argon2id rather than a plain digest: a short numeric code is
	// brute-forceable offline from a fast hash if Redis ever leaks.
	codeHash, err := core.HashPassword(code)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	// email is stored alongside the hash so verification can be audited
	// against the address the code was sent to.
	err = s.client.HSet(ctx, key, map[string]any{
		"code_hash": codeHash,
		"email":     email,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	return challengeID, nil
}

func (s *challengeStore) Verify(
	ctx context.Context,
	challengeID, code string,
) error {
	key := challengePrefix + challengeID

	hash, err := s.client.HGet(ctx, key, "code_hash").Result()
	if errors.Is(err, redis.Nil) {
		return onboarding.ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}

	ok, err := core.VerifyPassword(code, hash)
	if err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}
	if !ok {
		return onboarding.ErrCodeMismatch
	}

	// Single use. Best effort: the facade voids the challenge on the
	// session as well, so a failed delete cannot resurrect the code.
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}

	return nil
}
