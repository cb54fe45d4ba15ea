// Package idempotency implements the idempotency ledger: it maps a
// (user, key) pair either to "in progress" or to a saved response, and
// guarantees that the guarded operation runs at most once per pair.
//
// The first caller reserves the pair by inserting a placeholder row inside
// the transaction that performs the side effects, and fills it with the final
// response before committing. A concurrent duplicate stalls on the
// placeholder's row lock (Postgres) or on the database write lock (SQLite)
// until the first transaction finishes, then replays the saved response. If
// the first transaction rolls back, the reservation disappears with it and
// the duplicate starts fresh.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// Ledger errors.
var (
	// ErrInFlight is returned when a duplicate gave up waiting for the first
	// submission to save its response.
	ErrInFlight = errors.New("idempotent request still in progress")

	// ErrNotFound is returned by Lookup when no completed response exists.
	ErrNotFound = errors.New("idempotency record not found")
)

// errVanished signals that the reservation was rolled back while we waited.
var errVanished = errors.New("idempotency reservation released")

// DefaultReplayWait bounds how long a duplicate waits for the saved response.
const DefaultReplayWait = 10 * time.Second

// maxReservationRounds bounds how often a caller retries after the winner
// rolled back under it.
const maxReservationRounds = 3

// Response is a saved HTTP response, replayed verbatim on retries.
type Response struct {
	StatusCode int
	Headers    domain.HeaderPairs
	Body       []byte
}

// Header returns the first value stored for name, or "".
func (r Response) Header(name string) string {
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

// NextAction is the outcome of BeginOrReplay: either *StartProcessing or
// *ReturnSaved.
type NextAction interface {
	isNextAction()
}

// StartProcessing means the caller owns the reservation. All side effects
// must run on Tx, and the caller must finish with SaveResponse or Abort.
type StartProcessing struct {
	Tx     *gorm.DB
	UserID string
	Key    Key
}

// ReturnSaved means an identical submission already completed; its response
// must be returned without performing any side effects.
type ReturnSaved struct {
	Response Response
}

func (*StartProcessing) isNextAction() {}
func (*ReturnSaved) isNextAction()     {}

// Option configures a Ledger.
type Option func(*Ledger)

// WithReplayWait sets how long a duplicate waits for the saved response.
func WithReplayWait(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.replayWait = d
		}
	}
}

// WithPollInterval sets the initial interval between saved-response reads.
func WithPollInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// Ledger is safe for concurrent use.
type Ledger struct {
	db           *gorm.DB
	replayWait   time.Duration
	pollInterval time.Duration
}

// NewLedger returns a ledger backed by db.
func NewLedger(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:           db,
		replayWait:   DefaultReplayWait,
		pollInterval: 20 * time.Millisecond,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// BeginOrReplay reserves (userID, key) or returns the saved response of an
// earlier submission. On StartProcessing the returned transaction is open.
func (l *Ledger) BeginOrReplay(ctx context.Context, userID string, key Key) (NextAction, error) {
	tr := otel.Tracer("idempotency/Ledger")
	ctx, span := tr.Start(ctx, "BeginOrReplay",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	// Fast path: completed submissions replay without opening a write transaction.
	if rec, err := repo.GetIdempotency(ctx, l.db, userID, key.String()); err == nil && rec.Completed() {
		outcomes.WithLabelValues(outcomeReplayed).Inc()
		span.SetAttributes(attribute.Bool("idempotency.replayed", true))
		return &ReturnSaved{Response: toResponse(rec)}, nil
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	for round := 0; round < maxReservationRounds; round++ {
		tx := l.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("idempotency begin: %w", tx.Error)
		}
		// Blocks while another transaction holds an uncommitted row for the pair.
		inserted, err := repo.InsertIdempotencyPlaceholder(ctx, tx, userID, key.String())
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("idempotency reserve: %w", err)
		}
		if inserted {
			outcomes.WithLabelValues(outcomeStarted).Inc()
			return &StartProcessing{Tx: tx, UserID: userID, Key: key}, nil
		}
		tx.Rollback()

		resp, err := l.awaitSaved(ctx, userID, key)
		switch {
		case err == nil:
			outcomes.WithLabelValues(outcomeReplayed).Inc()
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return &ReturnSaved{Response: *resp}, nil
		case errors.Is(err, errVanished):
			continue
		case errors.Is(err, ErrInFlight):
			outcomes.WithLabelValues(outcomeInFlight).Inc()
			return nil, err
		default:
			return nil, err
		}
	}
	outcomes.WithLabelValues(outcomeInFlight).Inc()
	return nil, ErrInFlight
}

// awaitSaved polls until the row for (userID, key) carries a response.
func (l *Ledger) awaitSaved(ctx context.Context, userID string, key Key) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.pollInterval
	b.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(ctx, func() (*Response, error) {
		rec, err := repo.GetIdempotency(ctx, l.db, userID, key.String())
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, backoff.Permanent(errVanished)
		case err != nil:
			return nil, backoff.Permanent(fmt.Errorf("idempotency lookup: %w", err))
		case !rec.Completed():
			return nil, ErrInFlight
		}
		resp := toResponse(rec)
		return &resp, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(l.replayWait),
	)
}

// SaveResponse stores resp for the reservation held by tx and commits. On
// any failure the transaction is rolled back, which also removes the
// reservation so the same key can be retried.
func (l *Ledger) SaveResponse(ctx context.Context, tx *gorm.DB, userID string, key Key, resp Response) error {
	if err := repo.SaveIdempotencyResponse(ctx, tx, userID, key.String(), resp.StatusCode, resp.Headers, resp.Body); err != nil {
		tx.Rollback()
		return fmt.Errorf("idempotency save: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("idempotency commit: %w", err)
	}
	return nil
}

// Abort releases a reservation without saving anything.
func (l *Ledger) Abort(tx *gorm.DB) {
	tx.Rollback()
}

// Lookup returns the completed response for (userID, key). It returns
// ErrNotFound when nothing was saved and ErrInFlight while the first
// submission is still running.
func (l *Ledger) Lookup(ctx context.Context, userID string, key Key) (*Response, error) {
	rec, err := repo.GetIdempotency(ctx, l.db, userID, key.String())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if !rec.Completed() {
		return nil, ErrInFlight
	}
	resp := toResponse(rec)
	return &resp, nil
}

func toResponse(rec *domain.IdempotencyRecord) Response {
	return Response{
		StatusCode: *rec.ResponseStatusCode,
		Headers:    rec.ResponseHeaders,
		Body:       rec.ResponseBody,
	}
}
