package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"healthdom/internal/session"
	"healthdom/pkg/types"
)

const sessionContextKey = "currentSession"

// tokenFromRequest looks for the session token where clients put it: the
// session_token header, the session cookie, or a query parameter.
func tokenFromRequest(c *gin.Context) string {
	if token := c.GetHeader("session_token"); token != "" {
		return token
	}
	if token, err := c.Cookie("session_token"); err == nil && token != "" {
		return token
	}
	return c.Query("token")
}

// requireSession resolves the token and stores the session in the request
// context. Every failure mode answers the same generic 401: an expired or
// tampered token must look identical to never having logged in.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.sessions.Resolve(c.Request.Context(), tokenFromRequest(c))
		if err != nil {
			if errors.Is(err, session.ErrExpiredOrInvalid) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "session expired or invalid"})
			} else {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "service temporarily unavailable"})
			}
			return
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// requireRole guards a route group behind an exact role match.
func (s *Server) requireRole(role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		if sess == nil || sess.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "unauthorized access"})
			return
		}
		c.Next()
	}
}

// currentSession returns the resolved session, nil outside requireSession.
func currentSession(c *gin.Context) *types.Session {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*types.Session)
	return sess
}
