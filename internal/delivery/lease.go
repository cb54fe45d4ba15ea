package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// claimSQL takes the oldest due, unleased task in one statement. The outer
// predicate repeats the lease check so the UPDATE only wins if the row is
// still free when it is written.
const claimSQL = `UPDATE delivery_tasks
SET claim_token = ?, claimed_until = ?
WHERE id = (
	SELECT id FROM delivery_tasks
	WHERE next_attempt_at <= ? AND claimed_until <= ?
	ORDER BY next_attempt_at, id
	LIMIT 1
) AND claimed_until <= ?`

// LeaseQueue claims tasks by stamping them with a token and lease expiry.
// No transaction is held during the send.
type LeaseQueue struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewLeaseQueue returns a queue for databases without SKIP LOCKED. ttl must
// exceed the longest claim a Worker can hold, which is twice its
// SendTimeout; a shorter lease expires mid-send and the task is delivered
// again by whoever reclaims it. ttl <= 0 selects DefaultLeaseTTL.
func NewLeaseQueue(db *gorm.DB, ttl time.Duration) *LeaseQueue {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaseQueue{db: db, ttl: ttl}
}

// Dequeue leases the oldest due task whose lease is free or expired.
func (q *LeaseQueue) Dequeue(ctx context.Context, now time.Time) (Claim, error) {
	token := uuid.NewString()
	nowNs := now.UnixNano()

	var job Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(claimSQL, token, now.Add(q.ttl).UnixNano(), nowNs, nowNs, nowNs)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQueueEmpty
		}
		if err := tx.Where("claim_token = ?", token).Take(&job.Task).Error; err != nil {
			return err
		}
		issue, err := repo.GetIssue(ctx, tx, job.Task.NewsletterIssueID)
		if err != nil {
			return fmt.Errorf("load issue %s: %w", job.Task.NewsletterIssueID, err)
		}
		job.Issue = *issue
		return nil
	})
	if errors.Is(err, ErrQueueEmpty) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return &leaseClaim{db: q.db, token: token, job: job}, nil
}

type leaseClaim struct {
	db    *gorm.DB
	token string
	job   Job
}

func (c *leaseClaim) Job() Job { return c.job }

func (c *leaseClaim) owned(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).
		Model(&domain.DeliveryTask{}).
		Where("id = ? AND claim_token = ?", c.job.Task.ID, c.token)
}

func (c *leaseClaim) Complete(ctx context.Context) error {
	res := c.db.WithContext(ctx).
		Where("id = ? AND claim_token = ?", c.job.Task.ID, c.token).
		Delete(&domain.DeliveryTask{})
	return settle(res)
}

func (c *leaseClaim) Retry(ctx context.Context, next time.Time) error {
	return settle(c.owned(ctx).Updates(map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"next_attempt_at": next.UnixNano(),
		"claimed_until":   0,
		"claim_token":     "",
	}))
}

func (c *leaseClaim) Release(ctx context.Context) error {
	return settle(c.owned(ctx).Updates(map[string]any{
		"claimed_until": 0,
		"claim_token":   "",
	}))
}

func settle(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}
