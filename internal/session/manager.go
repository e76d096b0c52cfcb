package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"healthdom/pkg/interfaces"
	"healthdom/pkg/types"
)

const keyPrefix = "session:"

// Manager issues, resolves and revokes session tokens backed by the TTL
// key-value store. A token maps to exactly one structured (user_id, role)
// record under a single key, so the pair can never expire apart.
type Manager struct {
	store   interfaces.KeyValue
	ttl     time.Duration
	sliding bool
	logger  *zap.Logger
}

// NewManager creates a session manager. When sliding is true every
// successful Resolve pushes the token's expiry out by ttl again.
func NewManager(store interfaces.KeyValue, ttl time.Duration, sliding bool, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		store:   store,
		ttl:     ttl,
		sliding: sliding,
		logger:  logger,
	}
}

// newToken returns a 128-bit random token in hex. Collisions across
// distinct sessions are not a practical concern at this entropy.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create verifies nothing about the caller; credential checks happen in the
// login handler. It writes the session record and returns the opaque token.
func (m *Manager) Create(ctx context.Context, userID uint, role types.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("create session: invalid role %q", role)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}

	record, err := json.Marshal(types.Session{UserID: userID, Role: role})
	if err != nil {
		return "", fmt.Errorf("encode session record: %w", err)
	}

	if err := m.store.Set(ctx, keyPrefix+token, string(record), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	m.logger.Info("session created",
		zap.Uint("user_id", userID),
		zap.String("role", string(role)),
		zap.Duration("ttl", m.ttl))
	return token, nil
}

// Resolve redeems a token for its session record. Store failures propagate
// so the caller can answer 5xx instead of silently treating the user as
// logged out.
func (m *Manager) Resolve(ctx context.Context, token string) (*types.Session, error) {
	if token == "" {
		return nil, ErrExpiredOrInvalid
	}

	raw, found, err := m.store.Get(ctx, keyPrefix+token)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !found {
		return nil, ErrExpiredOrInvalid
	}

	var sess types.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || !sess.Role.Valid() {
		// A corrupt record is never half-authenticated.
		return nil, ErrExpiredOrInvalid
	}

	if m.sliding {
		// Two concurrent refreshes both extend to the same future point, so
		// their order does not matter. A refresh that loses the race with
		// expiry is fine: the record was already gone.
		if _, err := m.store.Expire(ctx, keyPrefix+token, m.ttl); err != nil {
			m.logger.Warn("session ttl refresh failed", zap.Error(err))
		}
	}

	return &sess, nil
}

// Revoke deletes the session record. Revoking an already expired or absent
// token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, keyPrefix+token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// TTL exposes the configured session lifetime for cookie max-age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
