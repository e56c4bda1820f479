package handlers

import (
	"time"

	"github.com/example/eco-collect/internal/repository"
)

type userView struct {
	ID         uint            `json:"id"`
	UserName   string          `json:"user_name"`
	Email      string          `json:"email"`
	Role       repository.Role `json:"role"`
	PointScore int64           `json:"point_score"`
}

func newUserView(u *repository.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{ID: u.ID, UserName: u.UserName, Email: u.Email, Role: u.Role, PointScore: u.PointScore}
}

type uploadView struct {
	ID            uint       `json:"id"`
	UserID        uint       `json:"user_id"`
	UserName      string     `json:"user_name"`
	FilenameURL   string     `json:"filename_url"`
	ImageSHA1     string     `json:"image_sha1"`
	Category      string     `json:"category"`
	Confidence    float64    `json:"confidence"`
	PointsAwarded int64      `json:"points_awarded"`
	Weight        *float64   `json:"weight"`
	CentreID      *uint      `json:"centre_id"`
	NotVerified   bool       `json:"not_verified"`
	VerifiedAt    *time.Time `json:"verified_at"`
	VerifiedBy    *uint      `json:"verified_by"`
	UploadDate    time.Time  `json:"upload_date"`
}

func newUploadView(u *repository.Upload) uploadView {
	return uploadView{
		ID:            u.ID,
		UserID:        u.UserID,
		UserName:      u.UserName,
		FilenameURL:   u.FilenameURL,
		ImageSHA1:     u.ImageSHA1,
		Category:      u.Category,
		Confidence:    u.Confidence,
		PointsAwarded: u.PointsAwarded,
		Weight:        u.Weight,
		CentreID:      u.CentreID,
		NotVerified:   u.NotVerified,
		VerifiedAt:    u.VerifiedAt,
		VerifiedBy:    u.VerifiedBy,
		UploadDate:    u.UploadDate,
	}
}

func newUploadViews(uploads []repository.Upload) []uploadView {
	views := make([]uploadView, 0, len(uploads))
	for i := range uploads {
		views = append(views, newUploadView(&uploads[i]))
	}
	return views
}

type centreRef struct {
	ID   *uint   `json:"id"`
	Name *string `json:"name"`
}

type submissionView struct {
	ID            uint      `json:"id"`
	FilenameURL   string    `json:"filename_url"`
	Category      string    `json:"category"`
	Confidence    float64   `json:"confidence"`
	Weight        *float64  `json:"weight"`
	PointsAwarded int64     `json:"points_awarded"`
	NotVerified   bool      `json:"not_verified"`
	Centre        centreRef `json:"centre"`
	UploadDate    time.Time `json:"upload_date"`
}

func newSubmissionViews(uploads []repository.Upload) []submissionView {
	views := make([]submissionView, 0, len(uploads))
	for _, u := range uploads {
		view := submissionView{
			ID:            u.ID,
			FilenameURL:   u.FilenameURL,
			Category:      u.Category,
			Confidence:    u.Confidence,
			Weight:        u.Weight,
			PointsAwarded: u.PointsAwarded,
			NotVerified:   u.NotVerified,
			Centre:        centreRef{ID: u.CentreID},
			UploadDate:    u.UploadDate,
		}
		if u.Centre != nil {
			name := u.Centre.Name
			view.Centre.Name = &name
		}
		views = append(views, view)
	}
	return views
}

type centreSummary struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}
