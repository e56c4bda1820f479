package repository

import (
	"time"

	"gorm.io/datatypes"
)

// Role is the access level of a user.
type Role string

const (
	RoleCivilian  Role = "civilian"
	RoleCorporate Role = "corporate"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCivilian, RoleCorporate, RoleAdmin:
		return true
	}
	return false
}

// User is a registered account and its point balance.
type User struct {
	ID                     uint       `gorm:"primaryKey"`
	UserName               string     `gorm:"column:user_name;uniqueIndex;size:80;not null"`
	Email                  string     `gorm:"column:email;uniqueIndex;size:120;not null"`
	PasswordHash           string     `gorm:"column:password_hash;not null"`
	Role                   Role       `gorm:"column:role;size:20;not null;default:civilian"`
	TermsApproved          bool       `gorm:"column:terms_approved;not null;default:false"`
	PointScore             int64      `gorm:"column:point_score;not null;default:0"`
	ProfileImage           *string    `gorm:"column:profile_image;size:255"`
	PasswordResetToken     *string    `gorm:"column:password_reset_token;uniqueIndex;size:64"`
	PasswordResetExpiresAt *time.Time `gorm:"column:password_reset_expires_at"`
	CreatedAt              time.Time  `gorm:"column:created_at"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Center is a drop-off location for collected items.
type Center struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"column:name;size:120;not null" json:"name"`
	Company     *string        `gorm:"column:company;size:120" json:"company"`
	Location    string         `gorm:"column:location;size:255;not null" json:"location"`
	LocationURL *string        `gorm:"column:location_url;size:512" json:"location_url"`
	TimeOpen    *string        `gorm:"column:time_open;size:120" json:"time_open"`
	Contact     *string        `gorm:"column:contact;size:120" json:"contact"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedBy   uint           `gorm:"column:created_by;not null;index" json:"created_by"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Center) TableName() string {
	return "centers"
}

// Upload is one submitted item: its classification, the points it is worth
// and whether those points have been credited yet.
type Upload struct {
	ID            uint       `gorm:"primaryKey"`
	UserID        uint       `gorm:"column:user_id;not null;index"`
	UserName      string     `gorm:"column:user_name;size:80"`
	FilenameURL   string     `gorm:"column:filename_url;size:255"`
	ImageSHA1     string     `gorm:"column:image_sha1;size:40;index"`
	Weight        *float64   `gorm:"column:weight"`
	CentreID      *uint      `gorm:"column:centre_id;index"`
	Centre        *Center    `gorm:"foreignKey:CentreID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Category      string     `gorm:"column:category;size:120;not null"`
	Confidence    float64    `gorm:"column:confidence;not null"`
	PointsAwarded int64      `gorm:"column:points_awarded;not null"`
	NotVerified   bool       `gorm:"column:not_verified;not null;default:true;index"`
	VerifiedAt    *time.Time `gorm:"column:verified_at"`
	VerifiedBy    *uint      `gorm:"column:verified_by"`
	UploadDate    time.Time  `gorm:"column:upload_date;not null;autoCreateTime"`
}

func (Upload) TableName() string {
	return "uploads"
}
