// Package delivery implements the delivery queue and the workers that drain
// it. Each pending (issue, recipient) pair is one row in delivery_tasks; a
// worker claims one row at a time, sends the issue, and then deletes the row
// or schedules it for another attempt.
//
// Two claim strategies are provided. On Postgres a claim is a row lock taken
// with FOR UPDATE SKIP LOCKED and held by an open transaction for the whole
// send. SQLite has no row locks, so there a claim is a lease: a
// compare-and-swap UPDATE stamps the row with a token and an expiry, and a
// crashed worker's lease simply runs out.
package delivery

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

var (
	// ErrQueueEmpty is returned by Dequeue when no task is due.
	ErrQueueEmpty = errors.New("delivery queue empty")

	// ErrClaimLost is returned when a lease expired and another worker took
	// the task over before this one finished.
	ErrClaimLost = errors.New("delivery claim lost")
)

// DefaultLeaseTTL is used by the lease strategy when none is configured.
const DefaultLeaseTTL = 2 * time.Minute

// Job is a claimed task together with the issue it delivers.
type Job struct {
	Task  domain.DeliveryTask
	Issue domain.NewsletterIssue
}

// Claim is exclusive ownership of one task until exactly one of its methods
// has been called.
type Claim interface {
	Job() Job
	// Complete deletes the task.
	Complete(ctx context.Context) error
	// Retry records a failed attempt and makes the task due again at next.
	Retry(ctx context.Context, next time.Time) error
	// Release gives the task back without counting an attempt.
	Release(ctx context.Context) error
}

// Queue hands out claims on due tasks.
type Queue interface {
	Dequeue(ctx context.Context, now time.Time) (Claim, error)
}

// NewQueue picks the claim strategy that fits db's dialect.
func NewQueue(db *gorm.DB, leaseTTL time.Duration) Queue {
	if db.Name() == repo.DriverPostgres {
		return NewSkipLockedQueue(db)
	}
	return NewLeaseQueue(db, leaseTTL)
}
