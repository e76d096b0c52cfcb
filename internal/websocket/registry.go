package websocket

import (
	"sync"

	"go.uber.org/zap"

	"healthdom/pkg/types"
)

// Registry is the in-process index from user identity to the set of live
// connections for that identity. Multiple browser tabs or devices register
// additively under the same key; a send failure on one connection never
// aborts delivery to the rest and evicts the failed handle before the next
// dispatch can see it.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[*Connection]struct{}
	logger *zap.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]map[*Connection]struct{}),
		logger: logger,
	}
}

// Register adds an authenticated connection under userID. Registration is
// additive: an existing connection for the same user is never replaced.
func (r *Registry) Register(userID string, conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !types.IsValidUserID(userID) {
		return ErrInvalidRegistryKey
	}
	if s := conn.State(); s != StateAuthenticated && s != StateOpen {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Connection]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}

	r.logger.Info("connection registered",
		zap.String("user_id", userID),
		zap.Int("connections", len(set)))
	return nil
}

// Unregister removes exactly that connection. Removing an absent handle is a
// no-op, so duplicate disconnect events are harmless. Empty sets are deleted
// so the map never accumulates dead keys.
func (r *Registry) Unregister(userID string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}

	r.logger.Info("connection unregistered",
		zap.String("user_id", userID),
		zap.Int("connections", len(set)))
}

// snapshot copies the live handle set for userID so delivery can proceed
// without holding the lock across socket writes.
func (r *Registry) snapshot(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// Send writes payload to every live connection for userID and returns the
// number of successful deliveries. An unknown userID is a silent no-op: the
// recipient is simply offline. Failed handles are closed and removed.
func (r *Registry) Send(userID string, payload []byte) int {
	delivered := 0
	for _, conn := range r.snapshot(userID) {
		if err := conn.Send(payload); err != nil {
			r.logger.Warn("peer write failed, dropping connection",
				zap.String("user_id", userID),
				zap.Error(err))
			r.Unregister(userID, conn)
			_ = conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast writes payload to every connection of every user.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	userIDs := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		userIDs = append(userIDs, userID)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, userID := range userIDs {
		delivered += r.Send(userID, payload)
	}
	return delivered
}

// ConnectionCount returns the number of live connections for userID.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// Stats reports registry totals for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return map[string]int{
		"connected_users":   len(r.conns),
		"total_connections": total,
	}
}

// CloseAll closes and removes every connection. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]map[*Connection]struct{})
	r.mu.Unlock()

	for _, set := range conns {
		for conn := range set {
			_ = conn.Close()
		}
	}
}
