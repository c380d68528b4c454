// Package auth implements the mocked one-time-password flow used for phone
// based sign-in. Codes live in an expiring key-value store; validity is
// always decided by the stored expiry timestamp at read time, never by
// background sweep timing.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Sentinel errors for OTP verification.
var (
	ErrOTPNotFound = errors.New("no code issued for this phone number")
	ErrOTPExpired  = errors.New("code has expired")
	ErrOTPMismatch = errors.New("incorrect code")
	ErrOTPDisabled = errors.New("otp service is disabled")
)

// Store is an expiring key-value store for issued codes. Get must return the
// stored expiry so the caller can decide validity; implementations are free
// to evict expired entries eagerly or lazily.
type Store interface {
	Put(ctx context.Context, phone, code string, expiresAt time.Time) error
	Get(ctx context.Context, phone string) (code string, expiresAt time.Time, err error)
	Delete(ctx context.Context, phone string) error
}

// Config controls OTP issuance.
type Config struct {
	// Enabled gates the whole flow; disabled deployments reject Send/Verify.
	Enabled bool
	// TTL is how long an issued code stays valid.
	TTL time.Duration
}

// OTP issues and verifies one-time passwords. Delivery is mocked: codes are
// written to the log instead of an SMS gateway.
type OTP struct {
	store Store
	cfg   Config
}

// New creates an OTP service over the given store.
func New(store Store, cfg Config) *OTP {
	return &OTP{store: store, cfg: cfg}
}

// newCode returns a 6-digit code from crypto/rand.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", errors.Wrap(err, "generate code")
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Send issues a fresh code for the phone number, replacing any outstanding
// one, and "delivers" it via the log.
func (o *OTP) Send(ctx context.Context, phone string) error {
	if !o.cfg.Enabled {
		return ErrOTPDisabled
	}
	if phone == "" {
		return errors.New("phone number required")
	}

	code, err := newCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(o.cfg.TTL)

	if err := o.store.Put(ctx, phone, code, expiresAt); err != nil {
		return errors.Wrap(err, "store code")
	}

	// Mock SMS delivery. A real gateway integration replaces this log line.
	zctx.From(ctx).Info("OTP issued",
		zap.String("phone", phone),
		zap.String("code", code),
		zap.Time("expires_at", expiresAt))
	return nil
}

// Verify checks the submitted code against the stored one. Expired entries
// are deleted on read; a successful verification consumes the code so it
// cannot be replayed.
func (o *OTP) Verify(ctx context.Context, phone, code string) error {
	if !o.cfg.Enabled {
		return ErrOTPDisabled
	}

	stored, expiresAt, err := o.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrOTPNotFound) {
			return ErrOTPNotFound
		}
		return errors.Wrap(err, "load code")
	}

	if time.Now().After(expiresAt) {
		_ = o.store.Delete(ctx, phone)
		return ErrOTPExpired
	}
	if stored != code {
		return ErrOTPMismatch
	}

	if err := o.store.Delete(ctx, phone); err != nil {
		return errors.Wrap(err, "consume code")
	}
	return nil
}
