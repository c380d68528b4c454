// Package redis provides Redis-backed implementations of domain stores.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nuhin13/test-ecom/internal/domain/auth"
)

const otpKeyPrefix = "otp:"

// OTPStore implements auth.Store on Redis. The expiry timestamp is persisted
// in the value so validity is still decided on read, with the key TTL acting
// as garbage collection.
type OTPStore struct {
	client *redis.Client
}

var _ auth.Store = (*OTPStore)(nil)

// NewOTPStore creates an OTPStore over the given client.
func NewOTPStore(client *redis.Client) *OTPStore {
	return &OTPStore{client: client}
}

type otpValue struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Put stores or replaces the code for a phone number. The key TTL gets a
// small grace period past the logical expiry so expired entries are still
// readable for a precise "expired" (vs "not found") answer.
func (s *OTPStore) Put(ctx context.Context, phone, code string, expiresAt time.Time) error {
	payload, err := json.Marshal(otpValue{Code: code, ExpiresAt: expiresAt})
	if err != nil {
		return errors.Wrap(err, "marshal otp")
	}

	ttl := time.Until(expiresAt) + time.Minute
	if err := s.client.Set(ctx, otpKeyPrefix+phone, payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "set otp")
	}
	return nil
}

// Get returns the stored code and expiry, or auth.ErrOTPNotFound.
func (s *OTPStore) Get(ctx context.Context, phone string) (string, time.Time, error) {
	raw, err := s.client.Get(ctx, otpKeyPrefix+phone).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, auth.ErrOTPNotFound
		}
		return "", time.Time{}, errors.Wrap(err, "get otp")
	}

	var v otpValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", time.Time{}, errors.Wrap(err, "unmarshal otp")
	}
	return v.Code, v.ExpiresAt, nil
}

// Delete removes the entry for a phone number.
func (s *OTPStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, otpKeyPrefix+phone).Err(); err != nil {
		return errors.Wrap(err, "delete otp")
	}
	return nil
}
