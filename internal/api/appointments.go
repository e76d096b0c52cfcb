package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"healthdom/internal/models"
	"healthdom/pkg/types"
)

type createAppointmentReq struct {
	DoctorID    uint      `json:"doctor_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// createAppointment books the slot and pushes confirmations to both parties.
// Notification delivery is fire-and-forget: an offline patient or doctor
// simply misses the push, the booking still succeeds.
func (s *Server) createAppointment(c *gin.Context) {
	var req createAppointmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid appointment request"})
		return
	}

	var doctor models.User
	err := s.db.Where("id = ? AND role = ?", req.DoctorID, types.RoleDoctor).First(&doctor).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"message": "doctor not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "booking failed"})
		return
	}

	sess := currentSession(c)
	appointment := models.Appointment{
		PatientID:   sess.UserID,
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Status:      models.AppointmentConfirmed,
	}
	if err := s.db.Create(&appointment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "booking failed"})
		return
	}

	patientKey := strconv.FormatUint(uint64(sess.UserID), 10)
	doctorKey := strconv.FormatUint(uint64(req.DoctorID), 10)
	s.dispatcher.Notify(patientKey, fmt.Sprintf("Your appointment with Doctor ID: %d is confirmed!", req.DoctorID))
	s.dispatcher.Notify(doctorKey, fmt.Sprintf("New appointment booked by Patient ID: %d", sess.UserID))

	s.logger.Info("appointment created",
		zap.Uint("appointment_id", appointment.ID),
		zap.Uint("patient_id", sess.UserID),
		zap.Uint("doctor_id", req.DoctorID))
	c.JSON(http.StatusCreated, gin.H{"message": "Appointment confirmed", "appointment": appointment})
}
