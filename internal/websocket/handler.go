package websocket

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"healthdom/pkg/types"
)

const kycReminderText = "Your KYC is not verified. Please complete it."

// SessionResolver is the slice of the session manager the handshake needs.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*types.Session, error)
}

// KYCChecker reports whether an account has completed KYC. Implemented by
// the user repository; nil disables the connect-time reminder.
type KYCChecker interface {
	KYCVerified(ctx context.Context, userID uint) (bool, error)
}

// Options bounds the per-connection timers and buffers.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 100
	}
	return o
}

// Handler owns the duplex endpoints: the authenticated notification channel
// and the open demo chat relay.
type Handler struct {
	registry *Registry
	sessions SessionResolver
	kyc      KYCChecker
	opts     Options
	logger   *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket handler.
func NewHandler(registry *Registry, sessions SessionResolver, kyc KYCChecker, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		sessions: sessions,
		kyc:      kyc,
		opts:     opts.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Browser clients connect from a separate frontend origin.
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// tokenFromRequest extracts the session token from the places the clients
// put it: a session_token header, the session cookie, or a query parameter.
func tokenFromRequest(c *gin.Context) string {
	if token := c.GetHeader("session_token"); token != "" {
		return token
	}
	if token, err := c.Cookie("session_token"); err == nil && token != "" {
		return token
	}
	return c.Query("token")
}

// HandleNotifications authenticates the handshake, registers the connection
// under the resolved user id and services it until the peer goes away. The
// token is resolved before the upgrade so a bad handshake is rejected with a
// plain auth-failure status and never enters Open.
func (h *Handler) HandleNotifications(c *gin.Context) {
	token := tokenFromRequest(c)
	sess, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "session expired or invalid"})
		return
	}
	userID := strconv.FormatUint(uint64(sess.UserID), 10)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, h.opts.WriteTimeout, h.opts.SendBuffer)
	if err := conn.SetIdentity(userID, sess.Role); err != nil {
		_ = conn.Close()
		return
	}
	if err := h.registry.Register(userID, conn); err != nil {
		h.logger.Warn("connection registration failed", zap.String("user_id", userID), zap.Error(err))
		_ = conn.Close()
		return
	}
	conn.MarkOpen()

	// The reminder touches the database, so it runs off the handshake path.
	go h.sendKYCReminder(sess.UserID, conn)

	h.readPump(userID, conn, nil)
}

// HandleChat serves the demo chat relay. There is no access control on this
// channel and inbound text is rebroadcast to every connection system-wide;
// that is the documented known-weak behavior of the relay, kept as-is.
func (h *Handler) HandleChat(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("chat upgrade failed", zap.Error(err))
		return
	}

	guestID := "chat-" + uuid.New().String()
	conn := NewConnection(ws, h.opts.WriteTimeout, h.opts.SendBuffer)
	if err := conn.SetIdentity(guestID, ""); err != nil {
		_ = conn.Close()
		return
	}
	if err := h.registry.Register(guestID, conn); err != nil {
		_ = conn.Close()
		return
	}
	conn.MarkOpen()

	h.readPump(guestID, conn, func(data []byte) {
		h.registry.Broadcast([]byte("Message: " + string(data)))
	})
	h.registry.Broadcast([]byte("A user has disconnected."))
}

// sendKYCReminder nudges unverified accounts right after they connect.
func (h *Handler) sendKYCReminder(userID uint, conn *Connection) {
	if h.kyc == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	verified, err := h.kyc.KYCVerified(ctx, userID)
	if err != nil {
		h.logger.Warn("kyc lookup failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	if !verified {
		if err := conn.Send([]byte(kycReminderText)); err != nil {
			h.logger.Warn("kyc reminder send failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
}

// readPump services a registered connection: ping/pong liveness, inbound
// reads, and guaranteed cleanup. onMessage may be nil for channels that only
// read to detect disconnects.
func (h *Handler) readPump(userID string, conn *Connection, onMessage func([]byte)) {
	defer func() {
		h.registry.Unregister(userID, conn)
		_ = conn.Close()
	}()

	if err := conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if messageType == websocket.TextMessage && onMessage != nil {
			onMessage(data)
		}
	}
}
