package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eco-collect/internal/logging"
)

// UserRepository provides persistence APIs for user accounts.
type UserRepository struct {
	retrier
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{retrier: newRetrier(logger.Named("user_repository")), db: db}
}

// Create inserts user unless the email or username is already in use. The
// checks and the insert share one transaction; a concurrent insert that slips
// past the checks is caught by the unique indexes and reported as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	return r.executeWithRetry(ctx, "repository.create_user", logging.RequestIDFromContext(ctx), func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrEmailTaken
			}

			if err := tx.Model(&User{}).Where("user_name = ?", user.UserName).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrUserNameTaken
			}

			return translate(tx.Create(user).Error)
		})
	})
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// SetResetToken stores a single-use password reset token for the user.
func (r *UserRepository) SetResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_reset_token":      token,
		"password_reset_expires_at": expiresAt,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeResetToken swaps the password hash of the user holding token and
// clears the token in the same statement, so a token can be used only once.
// Unknown and expired tokens both yield ErrNotFound.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("password_reset_token = ? AND password_reset_expires_at > ?", token, now).
		Updates(map[string]any{
			"password_hash":             passwordHash,
			"password_reset_token":      nil,
			"password_reset_expires_at": nil,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) SetProfileImage(ctx context.Context, userID uint, ref string) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("profile_image", ref)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
