// Package services – GalleryService
//
// GalleryService serves the public, deduplicated gallery: the newest record
// of each username, ordered by id descending, paginated.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/domain"
	"github.com/tbourn/go-genart-backend/internal/repo"
	"github.com/tbourn/go-genart-backend/internal/utils"
)

// GalleryRepo defines the repository contract required by GalleryService.
type GalleryRepo interface {
	// CountGalleryDistinct returns the size of the deduplicated listing.
	CountGalleryDistinct(ctx context.Context, db *gorm.DB) (int64, error)
	// ListGalleryPage returns one page of the deduplicated listing.
	ListGalleryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.GalleryRecord, error)
	// GalleryStats returns (count, latest id) for cache validation.
	GalleryStats(ctx context.Context, db *gorm.DB) (int64, int64, error)
}

// GormGalleryRepo adapts the package-level repo functions to GalleryRepo.
type GormGalleryRepo struct{}

func (GormGalleryRepo) CountGalleryDistinct(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountGalleryDistinct(ctx, db)
}

func (GormGalleryRepo) ListGalleryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.GalleryRecord, error) {
	return repo.ListGalleryPage(ctx, db, offset, limit)
}

func (GormGalleryRepo) GalleryStats(ctx context.Context, db *gorm.DB) (int64, int64, error) {
	return repo.GalleryStats(ctx, db)
}

// GalleryService lists gallery records.
type GalleryService struct {
	DB   *gorm.DB
	Repo GalleryRepo
}

// NewGalleryService wires the GORM-backed repository.
func NewGalleryService(db *gorm.DB) *GalleryService {
	return &GalleryService{DB: db, Repo: GormGalleryRepo{}}
}

// ListPage returns records for a 1-based page and the total number of
// listed entries. Non-positive inputs fall back to page 1 and 20 per page.
func (s *GalleryService) ListPage(ctx context.Context, page, pageSize int) ([]domain.GalleryRecord, int64, error) {
	tr := otel.Tracer("services/GalleryService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := s.Repo.CountGalleryDistinct(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	// Compare page indexes so a huge page never reaches the offset multiply.
	if total == 0 || int64(page-1) > (total-1)/int64(pageSize) {
		return []domain.GalleryRecord{}, total, nil
	}

	items, err := s.Repo.ListGalleryPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats returns the listing size and latest id.
func (s *GalleryService) Stats(ctx context.Context) (count int64, latestID int64, err error) {
	return s.Repo.GalleryStats(ctx, s.DB)
}
