package models

import "time"

// Appointment statuses. Creation confirms immediately; richer scheduling
// belongs to the surrounding CRUD layer, not this core.
const (
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
)

// Appointment links a patient to a doctor at a timeslot.
type Appointment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PatientID   uint      `gorm:"index;not null" json:"patient_id"`
	DoctorID    uint      `gorm:"index;not null" json:"doctor_id"`
	ScheduledAt time.Time `gorm:"not null" json:"scheduled_at"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
