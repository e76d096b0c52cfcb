package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthdom/internal/mail"
	"healthdom/internal/notify"
	"healthdom/internal/otp"
	"healthdom/internal/session"
	"healthdom/internal/websocket"
	"healthdom/pkg/interfaces"
	"healthdom/pkg/types"
)

// Server is the HTTP surface: account/session endpoints, password reset,
// the business endpoints that trigger notifications, and the duplex
// WebSocket routes. It holds no business state of its own.
type Server struct {
	engine     *gin.Engine
	db         *gorm.DB
	sessions   *session.Manager
	otps       *otp.Manager
	mailer     *mail.Mailer
	dispatcher *notify.Dispatcher
	registry   *websocket.Registry
	store      interfaces.KeyValue
	logger     *zap.Logger
}

// NewServer wires the routes. mode is the gin mode ("release", "debug",
// "test").
func NewServer(
	mode string,
	db *gorm.DB,
	sessions *session.Manager,
	otps *otp.Manager,
	mailer *mail.Mailer,
	dispatcher *notify.Dispatcher,
	registry *websocket.Registry,
	kvstore interfaces.KeyValue,
	wsHandler *websocket.Handler,
	logger *zap.Logger,
) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}

	s := &Server{
		engine:     gin.New(),
		db:         db,
		sessions:   sessions,
		otps:       otps,
		mailer:     mailer,
		dispatcher: dispatcher,
		registry:   registry,
		store:      kvstore,
		logger:     logger,
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "session_token"},
		AllowCredentials: true,
	}))

	api := s.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", s.signup)
	auth.POST("/login", s.login)
	auth.POST("/logout", s.logout)
	auth.GET("/me", s.requireSession(), s.me)

	reset := api.Group("/password-reset")
	reset.POST("/request", s.requestPasswordReset)
	reset.POST("/confirm", s.confirmPasswordReset)

	api.POST("/appointments", s.requireSession(), s.requireRole(types.RolePatient), s.createAppointment)

	admin := api.Group("/admin", s.requireSession(), s.requireRole(types.RoleAdmin))
	admin.PATCH("/kyc/:id/approve", s.approveKYC)
	admin.POST("/notifications", s.sendNotification)

	s.engine.GET("/ws/notifications", wsHandler.HandleNotifications)
	s.engine.GET("/ws/chat", wsHandler.HandleChat)
	s.engine.GET("/health", s.health)

	return s
}

// Handler exposes the engine to the HTTP server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

// health reports store reachability and registry totals.
func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": s.registry.Stats()})
}
