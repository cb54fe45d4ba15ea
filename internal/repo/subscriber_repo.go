// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subscriptions
// and their confirmation tokens.
//
// Error semantics:
//   - CreateSubscriber returns ErrDuplicate when the email is already taken.
//   - SubscriberIDByToken returns ErrNotFound for unknown tokens.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// CreateSubscriber inserts a subscriber in pending_confirmation status.
func CreateSubscriber(ctx context.Context, db *gorm.DB, email, name string) (*domain.Subscriber, error) {
	s := &domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		SubscribedAt: time.Now().UTC(),
		Status:       domain.StatusPendingConfirmation,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// StoreSubscriptionToken associates token with subscriberID.
func StoreSubscriptionToken(ctx context.Context, db *gorm.DB, subscriberID, token string) error {
	return db.WithContext(ctx).
		Create(&domain.SubscriptionToken{Token: token, SubscriberID: subscriberID}).Error
}

// SubscriberIDByToken resolves a confirmation token.
func SubscriberIDByToken(ctx context.Context, db *gorm.DB, token string) (string, error) {
	var t domain.SubscriptionToken
	err := db.WithContext(ctx).Where("subscription_token = ?", token).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return t.SubscriberID, nil
}

// ConfirmSubscriber marks the subscriber as confirmed. Confirming twice is
// not an error.
func ConfirmSubscriber(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("id = ?", id).
		Update("status", domain.StatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConfirmedEmails returns the stored email of every confirmed
// subscriber, unvalidated, ordered by subscription time.
func ListConfirmedEmails(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("status = ?", domain.StatusConfirmed).
		Order("subscribed_at").
		Pluck("email", &out).Error
	return out, err
}
