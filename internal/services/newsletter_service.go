// Package services – NewsletterService
//
// This file implements NewsletterService, the publish command handler. A
// publish validates its input, consults the idempotency ledger, and then, in
// one transaction, creates the issue, enqueues one delivery task per valid
// confirmed subscriber, and stores the response that retries will replay.
// Delivery itself happens later in the delivery workers.
//
// Observability: all public methods are OpenTelemetry-instrumented.

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/delivery"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/idempotency"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// AcceptedMessage is returned to the operator once an issue is queued.
const AcceptedMessage = "The newsletter issue has been accepted - emails will go out shortly."

// ConfirmedSubscriber is one entry of the confirmed-subscriber list. Valid is
// false when the stored email no longer parses.
type ConfirmedSubscriber struct {
	Email string
	Valid bool
}

// ConfirmedSubscriberLister lists confirmed subscribers using db, which may
// be a transaction.
type ConfirmedSubscriberLister interface {
	ListConfirmed(ctx context.Context, db *gorm.DB) ([]ConfirmedSubscriber, error)
}

// PublishInput is one publish command.
type PublishInput struct {
	UserID         string
	Title          string
	HTMLContent    string
	TextContent    string
	IdempotencyKey string
}

// PublishResult is the response to return. Replayed is true when it came
// from the ledger rather than from this call.
type PublishResult struct {
	Response idempotency.Response
	Replayed bool
}

// AcceptedBody is the JSON body of a fresh publish response.
type AcceptedBody struct {
	IssueID    string `json:"issue_id"`
	Title      string `json:"title"`
	Recipients int64  `json:"recipients"`
	Message    string `json:"message"`
}

// IssueDetails is an issue plus its delivery progress.
type IssueDetails struct {
	Issue             domain.NewsletterIssue
	PendingDeliveries int64
	LastEnqueuedAt    *time.Time
}

// NewsletterService publishes and queries newsletter issues.
type NewsletterService struct {
	DB          *gorm.DB
	Ledger      *idempotency.Ledger
	Subscribers ConfirmedSubscriberLister

	// BasePath prefixes the Location header, e.g. "/api/v1".
	BasePath  string
	KeyMaxLen int
}

// Publish runs the publish command exactly once per (user, key). Retries of
// a completed command return the saved response without side effects.
func (s *NewsletterService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	tr := otel.Tracer("services/NewsletterService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(attribute.String("user.id", in.UserID)),
	)
	defer span.End()

	key, err := idempotency.ParseKey(in.IdempotencyKey, s.KeyMaxLen)
	if err != nil {
		return nil, err
	}
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.HTMLContent) == "" || strings.TrimSpace(in.TextContent) == "" {
		return nil, ErrEmptyContent
	}

	next, err := s.Ledger.BeginOrReplay(ctx, in.UserID, key)
	if err != nil {
		if errors.Is(err, idempotency.ErrInFlight) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	var sp *idempotency.StartProcessing
	switch a := next.(type) {
	case *idempotency.ReturnSaved:
		span.SetAttributes(attribute.Bool("idempotency.replayed", true))
		return &PublishResult{Response: a.Response, Replayed: true}, nil
	case *idempotency.StartProcessing:
		sp = a
	default:
		return nil, fmt.Errorf("%w: unexpected ledger action %T", ErrPublishFailed, next)
	}

	resp, enqueued, err := s.fanOut(ctx, sp.Tx, in.UserID, title, in.HTMLContent, in.TextContent)
	if err != nil {
		s.Ledger.Abort(sp.Tx)
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if err := s.Ledger.SaveResponse(ctx, sp.Tx, in.UserID, key, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	delivery.ObserveEnqueued(enqueued)
	span.SetAttributes(attribute.Int64("recipients", enqueued))
	return &PublishResult{Response: resp}, nil
}

// fanOut creates the issue and its delivery tasks on tx and builds the
// response to save.
func (s *NewsletterService) fanOut(ctx context.Context, tx *gorm.DB, userID, title, html, text string) (idempotency.Response, int64, error) {
	subs, err := s.Subscribers.ListConfirmed(ctx, tx)
	if err != nil {
		return idempotency.Response{}, 0, fmt.Errorf("list confirmed subscribers: %w", err)
	}
	recipients := make([]string, 0, len(subs))
	for _, sub := range subs {
		if !sub.Valid {
			log.Warn().Str("user_id", userID).
				Msg("skipping a confirmed subscriber: stored contact details are invalid")
			continue
		}
		recipients = append(recipients, sub.Email)
	}

	issue, err := repo.CreateIssue(ctx, tx, userID, title, text, html)
	if err != nil {
		return idempotency.Response{}, 0, fmt.Errorf("create issue: %w", err)
	}
	n, err := repo.EnqueueDeliveryTasks(ctx, tx, issue.ID, recipients, time.Now())
	if err != nil {
		return idempotency.Response{}, 0, fmt.Errorf("enqueue deliveries: %w", err)
	}

	body, err := json.Marshal(AcceptedBody{
		IssueID:    issue.ID,
		Title:      issue.Title,
		Recipients: n,
		Message:    AcceptedMessage,
	})
	if err != nil {
		return idempotency.Response{}, 0, err
	}
	return idempotency.Response{
		StatusCode: http.StatusAccepted,
		Headers: domain.HeaderPairs{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Location", Value: strings.TrimRight(s.BasePath, "/") + "/admin/newsletters/" + issue.ID},
		},
		Body: body,
	}, n, nil
}

// Get returns an issue with its pending delivery count.
func (s *NewsletterService) Get(ctx context.Context, id string) (*IssueDetails, error) {
	tr := otel.Tracer("services/NewsletterService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("issue.id", id)))
	defer span.End()

	issue, err := repo.GetIssue(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	pending, last, err := repo.IssueDeliveryStats(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &IssueDetails{Issue: *issue, PendingDeliveries: pending, LastEnqueuedAt: last}, nil
}

// ListPage returns issues newest first.
func (s *NewsletterService) ListPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error) {
	tr := otel.Tracer("services/NewsletterService")
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
	total, err := repo.CountIssues(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.NewsletterIssue{}, 0, nil
	}
	items, err := repo.ListIssuesPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	return items, total, err
}

func normalizeTitle(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" || utf8.RuneCountInString(s) > domain.MaxNameRunes {
		return "", ErrInvalidTitle
	}
	return s, nil
}
