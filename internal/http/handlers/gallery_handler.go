package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genart-backend/internal/domain"
)

// ListGalleryResponse wraps a page of gallery records and pagination
// information.
type ListGalleryResponse struct {
	Items      []domain.GalleryRecord `json:"items"`
	Pagination Pagination             `json:"pagination"`
}

// ListGallery godoc
// @ID          listGallery
// @Summary     List the gallery (paginated)
// @Description Returns the newest image of each username, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Gallery
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"gallery:3:17:1:20\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListGalleryResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /gallery [get]
func (h *Handlers) ListGallery(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, latest, err := h.gallerySvc.Stats(ctx); err == nil {
		etag := fmt.Sprintf(`W/"gallery:%d:%d:%d:%d"`, count, latest, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.gallerySvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list gallery")
		return
	}

	ok(c, http.StatusOK, ListGalleryResponse{
		Items:      items,
		Pagination: newPagination(page, pageSize, total),
	})
}
