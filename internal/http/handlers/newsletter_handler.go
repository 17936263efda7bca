package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-genart-backend/internal/services"
)

// NewsletterRequest is the JSON payload for a newsletter sign-up.
type NewsletterRequest struct {
	// Email is the address to subscribe (RFC 5322 addr-spec, max 320 chars).
	Email string `json:"email" binding:"required,email,max=320" example:"satoshi@example.com"`
}

// NewsletterResponse confirms a sign-up.
type NewsletterResponse struct {
	Email   string `json:"email" example:"satoshi@example.com"`
	Message string `json:"message" example:"Subscribed"`
}

// Subscribe godoc
// @ID          subscribeNewsletter
// @Summary     Subscribe to the newsletter
// @Tags        Newsletter
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.NewsletterRequest  true  "Email to subscribe"
//
// @Success     201  {object}  handlers.NewsletterResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid email"
// @Failure     409  {object}  handlers.ErrorResponse  "Already subscribed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /newsletter [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req NewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid email address is required")
		return
	}

	sub, err := h.newsSvc.Subscribe(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid email address is required")
		return
	case errors.Is(err, services.ErrDuplicateSubscriber):
		fail(c, http.StatusConflict, ErrCodeConflict, "email already subscribed")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeSubscribeFailed, "failed to subscribe")
		return
	}

	ok(c, http.StatusCreated, NewsletterResponse{Email: sub.Email, Message: "Subscribed"})
}
