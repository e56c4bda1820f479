package usecase

import (
	"context"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/repository"
)

// StatsSummary represents aggregated upload insights for the dashboard.
type StatsSummary struct {
	TotalUploads      int64                      `json:"total_uploads"`
	VerifiedUploads   int64                      `json:"verified_uploads"`
	PendingUploads    int64                      `json:"pending_uploads"`
	VerificationRate  float64                    `json:"verification_rate"`
	AwardedPoints     int64                      `json:"awarded_points"`
	PendingPoints     int64                      `json:"pending_points"`
	AverageConfidence float64                    `json:"average_confidence"`
	Categories        []repository.CategoryCount `json:"categories"`
}

// GetStats aggregates upload metrics from persisted uploads.
func (uc *UploadUseCase) GetStats(ctx context.Context, identity *auth.Identity) (*StatsSummary, error) {
	if err := requireReviewer(identity); err != nil {
		return nil, err
	}

	aggregation, err := uc.uploads.AggregateStats(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := uc.uploads.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []repository.CategoryCount{}
	}

	summary := &StatsSummary{
		TotalUploads:      aggregation.Total,
		VerifiedUploads:   aggregation.Verified,
		PendingUploads:    aggregation.Pending,
		AwardedPoints:     aggregation.AwardedPoints,
		PendingPoints:     aggregation.PendingPoints,
		AverageConfidence: aggregation.AverageConfidence,
		Categories:        categories,
	}

	if aggregation.Total > 0 {
		summary.VerificationRate = float64(aggregation.Verified) / float64(aggregation.Total)
	}

	return summary, nil
}
