package models

import (
	"time"

	"healthdom/pkg/types"
)

// User is an account able to log in: patient, doctor or admin. Passwords are
// stored bcrypt-hashed only.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:120;not null" json:"name"`
	Email        string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string     `gorm:"size:100;not null" json:"-"`
	Role         types.Role `gorm:"size:16;index;not null" json:"role"`
	KYCVerified  bool       `gorm:"not null;default:false" json:"kyc_verified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
