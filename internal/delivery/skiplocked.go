package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// SkipLockedQueue claims tasks with SELECT ... FOR UPDATE SKIP LOCKED. The
// claiming transaction stays open until the claim is settled, so a worker
// that dies mid-send releases its task when the connection drops.
type SkipLockedQueue struct {
	db *gorm.DB
}

// NewSkipLockedQueue returns a queue for databases with row-level locking.
func NewSkipLockedQueue(db *gorm.DB) *SkipLockedQueue {
	return &SkipLockedQueue{db: db}
}

// Dequeue locks the oldest due task that no other transaction holds.
func (q *SkipLockedQueue) Dequeue(ctx context.Context, now time.Time) (Claim, error) {
	tx := q.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	var task domain.DeliveryTask
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("next_attempt_at <= ?", now.UnixNano()).
		Order("next_attempt_at").
		Order("id").
		Limit(1).
		Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tx.Rollback()
		return nil, ErrQueueEmpty
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claim task: %w", err)
	}

	issue, err := repo.GetIssue(ctx, tx, task.NewsletterIssueID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("load issue %s: %w", task.NewsletterIssueID, err)
	}
	return &txClaim{tx: tx, job: Job{Task: task, Issue: *issue}}, nil
}

type txClaim struct {
	tx  *gorm.DB
	job Job
}

func (c *txClaim) Job() Job { return c.job }

func (c *txClaim) Complete(ctx context.Context) error {
	if err := c.tx.WithContext(ctx).Delete(&domain.DeliveryTask{}, "id = ?", c.job.Task.ID).Error; err != nil {
		c.tx.Rollback()
		return err
	}
	return c.tx.Commit().Error
}

func (c *txClaim) Retry(ctx context.Context, next time.Time) error {
	err := c.tx.WithContext(ctx).
		Model(&domain.DeliveryTask{}).
		Where("id = ?", c.job.Task.ID).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": next.UnixNano(),
		}).Error
	if err != nil {
		c.tx.Rollback()
		return err
	}
	return c.tx.Commit().Error
}

func (c *txClaim) Release(context.Context) error {
	return c.tx.Rollback().Error
}
