package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/internal/domain"
)

// CreateSubscriber inserts a newsletter subscriber. The email must already be
// normalized by the caller. Returns ErrDuplicate when it is already present.
func CreateSubscriber(ctx context.Context, db *gorm.DB, email string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// CountSubscribers returns the number of subscribers.
func CountSubscribers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Subscriber{}).Count(&n).Error
	return n, err
}
