// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// GalleryStats returns aggregate metadata for the deduplicated gallery: the
// number of listed entries (distinct usernames) and the latest assigned id.
// Any append changes latestID, so the pair identifies a listing version.
//
// Return values:
//   - count:    distinct usernames
//   - latestID: highest id, or 0 when empty
//   - err:      database error, if any
func GalleryStats(ctx context.Context, db *gorm.DB) (count int64, latestID int64, err error) {
	if count, err = CountGalleryDistinct(ctx, db); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	if latestID, err = LatestGalleryID(ctx, db); err != nil {
		return 0, 0, err
	}
	return count, latestID, nil
}
