// Package services – SubscriptionService
//
// SubscriptionService registers subscribers, sends the confirmation email,
// confirms tokens, and provides the confirmed-subscriber list consumed by the
// publish command.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

const (
	tokenLength   = 25
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// SubscriptionService manages subscriptions.
type SubscriptionService struct {
	DB     *gorm.DB
	Sender email.Sender

	// BaseURL and BasePath build the confirmation link.
	BaseURL  string
	BasePath string
}

// Subscribe registers a pending subscriber and sends the confirmation email.
// The subscriber is only stored if the email was sent.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, address string) (*domain.Subscriber, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Subscribe")
	defer span.End()

	n, err := domain.ParseSubscriberName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubscriber, err)
	}
	addr, err := domain.ParseSubscriberEmail(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubscriber, err)
	}

	var sub *domain.Subscriber
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := repo.CreateSubscriber(ctx, tx, addr.String(), string(n))
		if err != nil {
			return err
		}
		token, err := generateToken()
		if err != nil {
			return err
		}
		if err := repo.StoreSubscriptionToken(ctx, tx, created.ID, token); err != nil {
			return err
		}
		if err := s.Sender.Send(ctx, s.confirmationEmail(addr, token)); err != nil {
			return fmt.Errorf("%w: %v", ErrConfirmationEmail, err)
		}
		sub = created
		return nil
	})
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("subscriber.id", sub.ID))
		return sub, nil
	case errors.Is(err, repo.ErrDuplicate):
		return nil, ErrAlreadySubscribed
	default:
		return nil, err
	}
}

func (s *SubscriptionService) confirmationEmail(to domain.SubscriberEmail, token string) email.Message {
	link := fmt.Sprintf("%s%s/subscriptions/confirm?subscription_token=%s",
		strings.TrimRight(s.BaseURL, "/"), strings.TrimRight(s.BasePath, "/"), token)
	return email.Message{
		To:       to.String(),
		Subject:  "Welcome!",
		HTMLBody: fmt.Sprintf(`Welcome to our newsletter!<br />Click <a href="%s">here</a> to confirm your subscription.`, link),
		TextBody: fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link),
	}
}

// Confirm marks the subscriber owning token as confirmed.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Confirm")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}
	id, err := repo.SubscriberIDByToken(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUnknownToken
	}
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("subscriber.id", id))
	return repo.ConfirmSubscriber(ctx, s.DB, id)
}

// ListConfirmed returns every confirmed subscriber, flagging stored emails
// that no longer parse.
func (s *SubscriptionService) ListConfirmed(ctx context.Context, db *gorm.DB) ([]ConfirmedSubscriber, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "ListConfirmed")
	defer span.End()

	if db == nil {
		db = s.DB
	}
	emails, err := repo.ListConfirmedEmails(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]ConfirmedSubscriber, 0, len(emails))
	for _, e := range emails {
		_, perr := domain.ParseSubscriberEmail(e)
		out = append(out, ConfirmedSubscriber{Email: e, Valid: perr == nil})
	}
	span.SetAttributes(attribute.Int("subscribers", len(out)))
	return out, nil
}

func generateToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, tokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b), nil
}
