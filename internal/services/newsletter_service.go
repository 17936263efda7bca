package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/domain"
	"github.com/tbourn/go-genart-backend/internal/repo"
)

const maxEmailLen = 320

// NewsletterService handles newsletter sign-ups.
type NewsletterService struct {
	DB *gorm.DB
}

// Subscribe normalizes and validates email, then stores it. It returns
// ErrInvalidEmail or ErrDuplicateSubscriber for the predictable failures.
func (s *NewsletterService) Subscribe(ctx context.Context, email string) (*domain.Subscriber, error) {
	ctx, span := otel.Tracer("services/NewsletterService").Start(ctx, "Subscribe", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	norm, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	sub, err := repo.CreateSubscriber(ctx, s.DB, norm)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrDuplicateSubscriber
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sub, nil
}

// NormalizeEmail trims and lower-cases email. Address syntax is checked by
// the request binding; here only empty and overlong values are rejected.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || utf8.RuneCountInString(email) > maxEmailLen {
		return "", ErrInvalidEmail
	}
	return email, nil
}
