package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eco-collect/internal/logging"
)

// UploadRepository provides persistence APIs for submitted items and the
// verify-and-credit transition.
type UploadRepository struct {
	retrier
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB, logger *zap.Logger) *UploadRepository {
	return &UploadRepository{retrier: newRetrier(logger.Named("upload_repository")), db: db}
}

// Approval is the outcome of Approve.
type Approval struct {
	Upload          Upload
	AlreadyVerified bool
	OwnerMissing    bool
	PointScore      int64
}

// UploadStats aggregates uploads for the dashboard.
type UploadStats struct {
	Total             int64   `json:"total"`
	Verified          int64   `json:"verified"`
	Pending           int64   `json:"pending"`
	AwardedPoints     int64   `json:"awarded_points"`
	PendingPoints     int64   `json:"pending_points"`
	AverageConfidence float64 `json:"average_confidence"`
}

// CategoryCount is the number of uploads classified into one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

func (r *UploadRepository) Create(ctx context.Context, upload *Upload) error {
	requestID := logging.RequestIDFromContext(ctx)
	return r.executeWithRetry(ctx, "repository.create_upload", requestID, func() error {
		return r.db.WithContext(ctx).Create(upload).Error
	})
}

func (r *UploadRepository) FindByID(ctx context.Context, id uint) (*Upload, error) {
	var upload Upload
	if err := r.db.WithContext(ctx).First(&upload, id).Error; err != nil {
		return nil, translate(err)
	}
	return &upload, nil
}

// ListByUser returns the uploads of one user, newest first.
func (r *UploadRepository) ListByUser(ctx context.Context, userID uint) ([]Upload, error) {
	var uploads []Upload
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("upload_date DESC").Order("id DESC").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// ListHistory is ListByUser with the referenced center loaded.
func (r *UploadRepository) ListHistory(ctx context.Context, userID uint) ([]Upload, error) {
	var uploads []Upload
	err := r.db.WithContext(ctx).
		Preload("Centre").
		Where("user_id = ?", userID).
		Order("upload_date DESC").Order("id DESC").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// ListAll returns every upload, newest first. A non-nil notVerified filters
// on the verification flag.
func (r *UploadRepository) ListAll(ctx context.Context, notVerified *bool) ([]Upload, error) {
	query := r.db.WithContext(ctx).Model(&Upload{})
	if notVerified != nil {
		query = query.Where("not_verified = ?", *notVerified)
	}

	var uploads []Upload
	if err := query.Order("upload_date DESC").Order("id DESC").Find(&uploads).Error; err != nil {
		return nil, err
	}
	return uploads, nil
}

// Approve marks the upload verified and credits its points to the owner.
//
// The flag flip is a conditional UPDATE gated on not_verified, so when
// several approvals race only one of them changes the row; that one credits
// the owner in the same transaction. Every other caller gets
// AlreadyVerified and the balance is left untouched.
func (r *UploadRepository) Approve(ctx context.Context, id, approverID uint, now time.Time) (*Approval, error) {
	var approval *Approval
	err := r.executeWithRetry(ctx, "repository.approve_upload", logging.RequestIDFromContext(ctx), func() error {
		result := &Approval{}
		txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			flip := tx.Model(&Upload{}).
				Where("id = ? AND not_verified = ?", id, true).
				Updates(map[string]any{
					"not_verified": false,
					"verified_at":  now,
					"verified_by":  approverID,
				})
			if flip.Error != nil {
				return flip.Error
			}

			if err := tx.First(&result.Upload, id).Error; err != nil {
				return translate(err)
			}

			if flip.RowsAffected == 0 {
				result.AlreadyVerified = true
				return nil
			}

			credit := tx.Model(&User{}).
				Where("id = ?", result.Upload.UserID).
				Update("point_score", gorm.Expr("point_score + ?", result.Upload.PointsAwarded))
			if credit.Error != nil {
				return credit.Error
			}
			if credit.RowsAffected == 0 {
				result.OwnerMissing = true
				return nil
			}

			var owner User
			if err := tx.Select("point_score").First(&owner, result.Upload.UserID).Error; err != nil {
				return err
			}
			result.PointScore = owner.PointScore
			return nil
		})
		if txErr != nil {
			return txErr
		}
		approval = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approval, nil
}

// FindDuplicatesByHash returns the uploads sharing the image hash, other
// than excludeID, oldest first.
func (r *UploadRepository) FindDuplicatesByHash(ctx context.Context, hash string, excludeID uint) ([]Upload, error) {
	var uploads []Upload
	if hash == "" {
		return uploads, nil
	}
	err := r.db.WithContext(ctx).
		Where("image_sha1 = ? AND id <> ?", hash, excludeID).
		Order("upload_date ASC").Order("id ASC").
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

func (r *UploadRepository) AggregateStats(ctx context.Context) (*UploadStats, error) {
	var stats UploadStats
	err := r.db.WithContext(ctx).Model(&Upload{}).Select(
		"COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN not_verified THEN 0 ELSE 1 END), 0) AS verified, " +
			"COALESCE(SUM(CASE WHEN not_verified THEN 1 ELSE 0 END), 0) AS pending, " +
			"COALESCE(SUM(CASE WHEN not_verified THEN 0 ELSE points_awarded END), 0) AS awarded_points, " +
			"COALESCE(SUM(CASE WHEN not_verified THEN points_awarded ELSE 0 END), 0) AS pending_points, " +
			"COALESCE(AVG(confidence), 0) AS average_confidence",
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *UploadRepository) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	var counts []CategoryCount
	err := r.db.WithContext(ctx).Model(&Upload{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC").Order("category ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
