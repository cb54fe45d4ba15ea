// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// IssueDeliveryStats returns the number of pending tasks for issueID and the
// most recent enqueue time among them. When nothing is pending, the returned
// count is 0 and lastEnqueuedAt is nil.
func IssueDeliveryStats(ctx context.Context, db *gorm.DB, issueID string) (pending int64, lastEnqueuedAt *time.Time, err error) {
	scope := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.DeliveryTask{}).Where("newsletter_issue_id = ?", issueID)
	}

	if err = scope().Count(&pending).Error; err != nil {
		return 0, nil, err
	}
	if pending == 0 {
		return 0, nil, nil
	}

	// Get latest enqueued_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		EnqueuedAt time.Time
	}
	if err = scope().Select("enqueued_at").Order("enqueued_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return pending, &row.EnqueuedAt, nil
}
