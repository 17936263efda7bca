// Generate-image HTTP handler.
//
// POST /generate-image builds a prompt from the request, generates an image
// through the key-rotating retry controller, watermarks and uploads it, and
// records it in the gallery.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// request used the same key, the handler returns the originally created
// gallery record and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genart-backend/internal/http/middleware"
	"github.com/tbourn/go-genart-backend/internal/imagegen"
	"github.com/tbourn/go-genart-backend/internal/keypool"
	"github.com/tbourn/go-genart-backend/internal/services"
)

// HeaderIdempotencyReplayed marks responses served from a recorded result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// StatusClientClosedRequest is the non-standard status recorded when the
// caller disconnects before generation finishes.
const StatusClientClosedRequest = 499

// GenerateImageRequest is the JSON payload for generating an image.
type GenerateImageRequest struct {
	// Username is shown in the gallery (1–64 chars); the newest image per
	// username is listed.
	Username string `json:"username" binding:"required,max=64" example:"satoshi"`
	// Inscription is an optional label shown under the image (max 255 chars).
	Inscription string `json:"inscription" binding:"max=255" example:"Genesis Fox"`
	// Traits are free-form descriptors joined into the prompt.
	Traits []string `json:"traits" example:"red fur,gold crown"`
	// Attributes are key/value descriptors used when no traits are given.
	Attributes map[string]string `json:"attributes"`
}

// GenerateImageResponse is returned after a successful generation.
type GenerateImageResponse struct {
	ID       int64  `json:"id" example:"42"`
	ImageURL string `json:"imageUrl" example:"https://cdn.example.com/generated/2025/03/09/2a1b.png"`
	Message  string `json:"message" example:"Image generated"`
}

// GenerateImage godoc
// @ID          generateImage
// @Summary     Generate a watermarked image
// @Description Builds a prompt from the traits, generates an image (rotating API keys on failure), watermarks, uploads and records it in the gallery.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Images
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.GenerateImageRequest  true  "Generation payload"
//
// @Success     200  {object}  handlers.GenerateImageResponse
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid input"
// @Failure     499  {object}  handlers.ErrorResponse  "Client closed request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Generation unavailable"
// @Failure     504  {object}  handlers.ErrorResponse  "Generation timed out"
// @Router      /generate-image [post]
func (h *Handlers) GenerateImage(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username required (max 64 chars), inscription max 255 chars")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	res, err := h.genSvc.Generate(c.Request.Context(), services.GenerateInput{
		Username:       req.Username,
		Inscription:    req.Inscription,
		Traits:         req.Traits,
		Attributes:     req.Attributes,
		IdempotencyKey: key,
	})
	if err != nil {
		status, code, msg := generationError(err)
		switch {
		case status == StatusClientClosedRequest:
			middleware.LoggerFrom(c).Warn().Err(err).Msg("client went away during generation")
		case status >= http.StatusInternalServerError:
			middleware.LoggerFrom(c).Error().Err(err).Msg("generate image failed")
		}
		fail(c, status, code, msg)
		return
	}

	msg := "Image generated"
	if res.Replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
		msg = "Image already generated for this idempotency key"
	}
	ok(c, http.StatusOK, GenerateImageResponse{
		ID:       res.Record.ID,
		ImageURL: res.Record.ImageURL,
		Message:  msg,
	})
}

// generationError maps pipeline errors to (status, code, message). Terminal
// failures carry a generic message; upstream payloads never reach the client.
func generationError(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, keypool.ErrNoCredentials),
		errors.Is(err, imagegen.ErrMaxRetriesExceeded):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "image generation is temporarily unavailable"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrCodeClientClosed, "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout, "image generation timed out"
	default:
		return http.StatusInternalServerError, ErrCodeGenerationFailed, "failed to generate image"
	}
}
