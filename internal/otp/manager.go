package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"healthdom/pkg/interfaces"
)

const (
	keyPrefix  = "otp:"
	codeDigits = 6
)

// Manager issues and verifies single-use numeric codes keyed by email
// identity. At most one live code exists per identity: issuance claims the
// key with SetNX, verification consumes it with an atomic compare-and-delete.
type Manager struct {
	store  interfaces.KeyValue
	ttl    time.Duration
	logger *zap.Logger
}

// NewManager creates an OTP manager. ttl bounds code validity; the original
// reset flow uses five minutes.
func NewManager(store interfaces.KeyValue, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{store: store, ttl: ttl, logger: logger}
}

// generateCode returns a uniformly random fixed-length numeric string.
// Leading zeros are preserved: "004217" is a valid code.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

// Issue generates and stores a fresh code for identity. While an earlier
// code is still valid it returns ErrResendSuppressed instead of minting a
// second one, so two valid codes can never coexist.
func (m *Manager) Issue(ctx context.Context, identity string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	claimed, err := m.store.SetNX(ctx, keyPrefix+identity, code, m.ttl)
	if err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	if !claimed {
		return "", ErrResendSuppressed
	}

	m.logger.Info("otp issued", zap.String("identity", identity), zap.Duration("ttl", m.ttl))
	return code, nil
}

// Verify consumes the code on a successful match. The compare-and-delete is
// atomic, so of two concurrent verifications with the correct code exactly
// one returns true and the code never validates twice.
func (m *Manager) Verify(ctx context.Context, identity, code string) (bool, error) {
	if len(code) != codeDigits {
		return false, nil
	}

	consumed, err := m.store.CompareAndDelete(ctx, keyPrefix+identity, code)
	if err != nil {
		return false, fmt.Errorf("verify otp: %w", err)
	}
	if consumed {
		m.logger.Info("otp consumed", zap.String("identity", identity))
	}
	return consumed, nil
}

// TTL exposes the configured code lifetime for the delivery email.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Invalidate removes any outstanding code for identity. Used after a
// completed password change even though Verify already consumed the code,
// in case a duplicate reset flow is in flight.
func (m *Manager) Invalidate(ctx context.Context, identity string) error {
	if err := m.store.Delete(ctx, keyPrefix+identity); err != nil {
		return fmt.Errorf("invalidate otp: %w", err)
	}
	return nil
}
