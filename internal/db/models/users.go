package models

import (
	"fmt"

	"gorm.io/gorm"
)

// UserTier represents the service tier of a user
type UserTier string

// User tier constants
const (
	// TierFree represents the unpaid tier; results are archived to cold
	// storage after completion
	TierFree UserTier = "free_user"
	// TierPremium represents the paid tier; results stay in hot storage
	TierPremium UserTier = "premium_user"
)

// ParseUserTier converts a string representation of a service tier to UserTier
func ParseUserTier(str string) (UserTier, error) {
	switch UserTier(str) {
	case TierFree, TierPremium:
		return UserTier(str), nil
	}
	return "", fmt.Errorf("invalid user tier: %s", str)
}

func (t UserTier) String() string {
	return string(t)
}

// User represents an account that owns jobs
type User struct {
	gorm.Model
	UserID   string   `json:"user_id" gorm:"uniqueIndex;not null"`
	Username string   `json:"username" gorm:"not null"`
	Email    string   `json:"email"`
	Tier     UserTier `json:"tier" gorm:"not null;default:free_user"`
}
