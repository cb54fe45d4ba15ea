// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the enqueue side of the delivery queue.
// Claiming and retiring tasks lives in the delivery package, which owns the
// locking strategy.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// enqueueBatchSize bounds the number of rows per INSERT statement.
const enqueueBatchSize = 500

// EnqueueDeliveryTasks inserts one pending task per recipient for issueID.
// Recipients that already have a task for the issue are skipped. It returns
// the number of rows inserted.
func EnqueueDeliveryTasks(ctx context.Context, db *gorm.DB, issueID string, recipients []string, now time.Time) (int64, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	tasks := make([]domain.DeliveryTask, 0, len(recipients))
	for _, r := range recipients {
		tasks = append(tasks, domain.DeliveryTask{
			ID:                uuid.NewString(),
			NewsletterIssueID: issueID,
			SubscriberEmail:   r,
			NextAttemptAt:     now.UnixNano(),
			EnqueuedAt:        now.UTC(),
		})
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&tasks, enqueueBatchSize)
	return res.RowsAffected, res.Error
}

// CountPendingDeliveries returns the number of outstanding tasks, optionally
// restricted to one issue when issueID is non-empty.
func CountPendingDeliveries(ctx context.Context, db *gorm.DB, issueID string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.DeliveryTask{})
	if issueID != "" {
		q = q.Where("newsletter_issue_id = ?", issueID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
