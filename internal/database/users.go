package database

import (
	"context"

	"gorm.io/gorm"

	"healthdom/internal/models"
)

// Users is a thin read adapter over the user table for components that must
// not depend on the HTTP layer, such as the WebSocket KYC reminder.
type Users struct {
	db *gorm.DB
}

// NewUsers creates the adapter.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// KYCVerified reports whether the account completed KYC. An unknown user is
// treated as unverified rather than an error.
func (u *Users) KYCVerified(ctx context.Context, userID uint) (bool, error) {
	var user models.User
	err := u.db.WithContext(ctx).Select("kyc_verified").First(&user, userID).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.KYCVerified, nil
}
