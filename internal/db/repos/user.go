package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/glacierlabs/floe/internal/db/models"
)

// UserRepository handles database operations for user entities
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser creates a new user in the database.
// Returns an error if the user id already exists.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.GetByUserID(ctx, user.UserID)
	if err == nil {
		return fmt.Errorf("user id already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error checking user existence: %w", err)
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByUserID retrieves a user by their user identifier
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetTier returns the service tier for a user. This is the profile lookup
// the archival decision depends on.
func (r *UserRepository) GetTier(ctx context.Context, userID string) (models.UserTier, error) {
	user, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Tier, nil
}

// SetTier updates the service tier for a user.
func (r *UserRepository) SetTier(ctx context.Context, userID string, tier models.UserTier) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Update("tier", tier)
	if res.Error != nil {
		return fmt.Errorf("failed to set tier: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}
