package repository

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eco-collect/internal/logging"
)

// CenterRepository provides persistence APIs for collection centers.
type CenterRepository struct {
	retrier
	db *gorm.DB
}

func NewCenterRepository(db *gorm.DB, logger *zap.Logger) *CenterRepository {
	return &CenterRepository{retrier: newRetrier(logger.Named("center_repository")), db: db}
}

// List returns all centers ordered by id.
func (r *CenterRepository) List(ctx context.Context) ([]Center, error) {
	var centers []Center
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&centers).Error; err != nil {
		return nil, err
	}
	return centers, nil
}

// ListByName returns all centers ordered by name, for directory display.
func (r *CenterRepository) ListByName(ctx context.Context) ([]Center, error) {
	var centers []Center
	if err := r.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&centers).Error; err != nil {
		return nil, err
	}
	return centers, nil
}

func (r *CenterRepository) FindByID(ctx context.Context, id uint) (*Center, error) {
	var center Center
	if err := r.db.WithContext(ctx).First(&center, id).Error; err != nil {
		return nil, translate(err)
	}
	return &center, nil
}

func (r *CenterRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Center{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CenterRepository) Create(ctx context.Context, center *Center) error {
	return translate(r.db.WithContext(ctx).Create(center).Error)
}

// Update applies the column patch to the center and returns the stored row.
func (r *CenterRepository) Update(ctx context.Context, id uint, patch map[string]any) (*Center, error) {
	var center Center
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&center, id).Error; err != nil {
			return translate(err)
		}
		if len(patch) == 0 {
			return nil
		}
		if err := tx.Model(&center).Updates(patch).Error; err != nil {
			return err
		}
		return tx.First(&center, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &center, nil
}

// Delete removes the center. Uploads that referenced it keep their history
// and points but lose the center reference.
func (r *CenterRepository) Delete(ctx context.Context, id uint) error {
	return r.executeWithRetry(ctx, "repository.delete_center", logging.RequestIDFromContext(ctx), func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&Center{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}

			if err := tx.Model(&Upload{}).Where("centre_id = ?", id).Update("centre_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&Center{}, id).Error
		})
	})
}
