package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"healthdom/internal/models"
	"healthdom/pkg/types"
)

const bcryptCost = 12

type signupReq struct {
	Name     string `json:"name" binding:"required,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     string `json:"role" binding:"required"`
}

func (s *Server) signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid signup request"})
		return
	}

	role, err := types.ParseRole(req.Role)
	if err != nil || role == types.RoleAdmin {
		// Admin accounts are provisioned out of band, never self-registered.
		c.JSON(http.StatusBadRequest, gin.H{"message": "role must be 'patient' or 'doctor'"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "signup failed"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"message": "email already registered"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "signup failed"})
		return
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "signup failed"})
		return
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	c.JSON(http.StatusCreated, gin.H{
		"message": "Signup successful",
		"user":    gin.H{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role},
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid login request"})
		return
	}

	var user models.User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "login failed"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	if string(user.Role) != req.Role {
		c.JSON(http.StatusForbidden, gin.H{"message": "Unauthorized access"})
		return
	}

	token, err := s.sessions.Create(c.Request.Context(), user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "service temporarily unavailable"})
		return
	}

	c.SetCookie("session_token", token, int(s.sessions.TTL().Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"message":       "Login successful",
		"session_token": token,
		"role":          user.Role,
	})
}

func (s *Server) logout(c *gin.Context) {
	if token := tokenFromRequest(c); token != "" {
		if err := s.sessions.Revoke(c.Request.Context(), token); err != nil {
			s.logger.Warn("session revoke failed", zap.Error(err))
		}
	}
	c.SetCookie("session_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) me(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID, "role": sess.Role})
}
