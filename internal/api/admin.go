package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"healthdom/internal/models"
	"healthdom/pkg/types"
)

// approveKYC marks the account verified and pushes the news to the user.
func (s *Server) approveKYC(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid user id"})
		return
	}

	result := s.db.Model(&models.User{}).
		Where("id = ? AND role IN ?", id, []types.Role{types.RolePatient, types.RoleDoctor}).
		Update("kyc_verified", true)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "approval failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}

	s.dispatcher.Notify(strconv.FormatUint(id, 10), "Your KYC has been approved!")
	s.logger.Info("kyc approved", zap.Uint64("user_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "KYC approved"})
}

type sendNotificationReq struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// sendNotification is the administrative targeted send. The acknowledgment
// means the send was attempted, not that anyone received it.
func (s *Server) sendNotification(c *gin.Context) {
	var req sendNotificationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid notification request"})
		return
	}

	s.dispatcher.Notify(req.UserID, req.Message)
	c.JSON(http.StatusOK, gin.H{
		"status":  "Notification sent",
		"user_id": req.UserID,
		"message": req.Message,
	})
}
