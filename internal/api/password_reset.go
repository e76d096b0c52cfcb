package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"healthdom/internal/models"
	"healthdom/internal/otp"
)

type resetRequestReq struct {
	Email string `json:"email" binding:"required,email"`
}

// requestPasswordReset issues an OTP and mails it out of band. The response
// is identical whether the account exists, a code is already outstanding, or
// a fresh one was issued, so the endpoint cannot be used to probe accounts.
func (s *Server) requestPasswordReset(c *gin.Context) {
	var req resetRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	generic := gin.H{"message": "If the account exists, an OTP has been sent"}

	var user models.User
	err := s.db.Where("email = ?", email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusOK, generic)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "request failed"})
		return
	}

	code, err := s.otps.Issue(c.Request.Context(), email)
	if errors.Is(err, otp.ErrResendSuppressed) {
		c.JSON(http.StatusOK, generic)
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "service temporarily unavailable"})
		return
	}

	s.mailer.SendOTPAsync(email, code, s.otps.TTL())
	c.JSON(http.StatusOK, generic)
}

type resetConfirmReq struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// confirmPasswordReset consumes the code and rehashes the password. A wrong
// code and an expired code produce the same generic failure.
func (s *Server) confirmPasswordReset(c *gin.Context) {
	var req resetConfirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ok, err := s.otps.Verify(c.Request.Context(), email, req.OTP)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "service temporarily unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired OTP"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "reset failed"})
		return
	}

	result := s.db.Model(&models.User{}).Where("email = ?", email).Update("password_hash", string(hash))
	if result.Error != nil || result.RowsAffected == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired OTP"})
		return
	}

	// Verify already consumed the code; this guards duplicate in-flight flows.
	if err := s.otps.Invalidate(c.Request.Context(), email); err != nil {
		s.logger.Warn("otp invalidation failed", zap.String("email", email), zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}
