// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GalleryRecord model.
//
// Gallery ids are sequential and assigned as "latest id + 1" inside a
// transaction. The listing is deduplicated by username: only the newest
// record (highest id) of each username is returned, ordered by id
// descending.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/domain"
)

// maxCreateRetries bounds retries when two writers race for the same id.
const maxCreateRetries = 3

// LatestGalleryID returns the highest assigned id, or 0 when the table is empty.
func LatestGalleryID(ctx context.Context, db *gorm.DB) (int64, error) {
	var rec domain.GalleryRecord
	err := db.WithContext(ctx).Select("id").Order("id DESC").Limit(1).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// CreateGalleryRecord appends a record with id = latest + 1. A concurrent
// writer claiming the same id causes a bounded retry.
func CreateGalleryRecord(ctx context.Context, db *gorm.DB, username, inscription, imageURL, prompt string) (*domain.GalleryRecord, error) {
	rec := &domain.GalleryRecord{
		Username:    strings.TrimSpace(username),
		Inscription: strings.TrimSpace(inscription),
		ImageURL:    imageURL,
		Prompt:      prompt,
	}

	var err error
	for i := 0; i < maxCreateRetries; i++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			latest, err := LatestGalleryID(ctx, tx)
			if err != nil {
				return err
			}
			rec.ID = latest + 1
			rec.CreatedAt = time.Now().UTC()
			return tx.Create(rec).Error
		})
		if err == nil {
			return rec, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, err
}

// GetGalleryRecord fetches a record by id, or ErrNotFound.
func GetGalleryRecord(ctx context.Context, db *gorm.DB, id int64) (*domain.GalleryRecord, error) {
	var rec domain.GalleryRecord
	if err := db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// latestPerUsername selects the newest id of every username.
func latestPerUsername(db *gorm.DB) *gorm.DB {
	return db.Model(&domain.GalleryRecord{}).Select("MAX(id)").Group("username")
}

// ListGalleryPage returns one page of the deduplicated listing.
func ListGalleryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.GalleryRecord, error) {
	var out []domain.GalleryRecord
	err := db.WithContext(ctx).
		Where("id IN (?)", latestPerUsername(db.WithContext(ctx))).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountGalleryDistinct returns the number of distinct usernames, i.e. the
// size of the deduplicated listing.
func CountGalleryDistinct(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.GalleryRecord{}).Distinct("username").Count(&n).Error
	return n, err
}
