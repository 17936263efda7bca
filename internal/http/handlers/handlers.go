// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, call application
// services, and translate results into HTTP responses (including conditional
// responses and the error envelope).
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genart-backend/internal/domain"
	"github.com/tbourn/go-genart-backend/internal/services"
	"github.com/tbourn/go-genart-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// GenerationService runs the generate-image pipeline.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GenerationService interface {
	Generate(ctx context.Context, in services.GenerateInput) (*services.GenerateResult, error)
}

// GalleryService lists the deduplicated gallery.
type GalleryService interface {
	// ListPage returns a page of records and the total number of entries.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.GalleryRecord, int64, error)
	// Stats returns (count, latest id) used for the listing ETag.
	Stats(ctx context.Context) (int64, int64, error)
}

// NewsletterService stores newsletter sign-ups.
type NewsletterService interface {
	Subscribe(ctx context.Context, email string) (*domain.Subscriber, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for generation, the gallery and the
// newsletter.
type Handlers struct {
	genSvc     GenerationService
	gallerySvc GalleryService
	newsSvc    NewsletterService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(genSvc GenerationService, gallerySvc GalleryService, newsSvc NewsletterService) *Handlers {
	return &Handlers{genSvc: genSvc, gallerySvc: gallerySvc, newsSvc: newsSvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// newPagination derives totals for a page.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}
