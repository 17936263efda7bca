// Package domain defines the persistence models for gallery records and
// newsletter subscribers. These types are mapped with GORM and shared across
// the repository and service layers.
package domain

import "time"

// GalleryRecord is one generated image published to the gallery. Records are
// append-only and carry a sequential integer id assigned as "latest id + 1".
// Several records may share a username; the gallery listing shows only the
// newest record per username.
//
// Fields:
//   - ID: sequential primary key (not auto-increment; assigned by the repo).
//   - Username: display name supplied with the generation request.
//   - Inscription: free-form label or trait summary shown under the image.
//   - ImageURL: public URL returned by the asset store.
//   - Prompt: prompt text sent to the image model.
//   - CreatedAt: timestamp managed by GORM.
type GalleryRecord struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement:false"`
	Username    string    `json:"username"    gorm:"type:varchar(64);not null;index:idx_gallery_username"`
	Inscription string    `json:"inscription" gorm:"type:varchar(255);not null;default:''"`
	ImageURL    string    `json:"imageUrl"    gorm:"type:text;not null"`
	Prompt      string    `json:"-"           gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName returns the database table name for GalleryRecord.
func (GalleryRecord) TableName() string { return "gallery_records" }

// Subscriber is a newsletter sign-up. Emails are stored lower-cased and are
// unique.
type Subscriber struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"     gorm:"type:varchar(320);not null;uniqueIndex:ux_subscribers_email"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for Subscriber.
func (Subscriber) TableName() string { return "subscribers" }
