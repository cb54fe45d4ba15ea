package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

func TestIssueDeliveryStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := IssueDeliveryStats(context.Background(), db, "i1"); err == nil {
		t.Fatalf("expected error due to missing delivery_tasks table")
	}
}

func TestIssueDeliveryStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.NewsletterIssue{}, &domain.DeliveryTask{})
	count, last, err := IssueDeliveryStats(context.Background(), db, "i1")
	if err != nil || count != 0 || last != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, last, err)
	}
}

func TestIssueDeliveryStats_LatestEnqueue(t *testing.T) {
	db := newTestDB(t, &domain.NewsletterIssue{}, &domain.DeliveryTask{})
	ctx := context.Background()
	is, err := CreateIssue(ctx, db, "op", "T", "t", "h")
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	t1 := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	t2 := t1.Add(30 * time.Second)
	if _, err := EnqueueDeliveryTasks(ctx, db, is.ID, []string{"a@example.com"}, t1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := EnqueueDeliveryTasks(ctx, db, is.ID, []string{"b@example.com"}, t2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	count, last, err := IssueDeliveryStats(ctx, db, is.ID)
	if err != nil || count != 2 || last == nil {
		t.Fatalf("unexpected stats (%d, %v, %v)", count, last, err)
	}
	if !last.Equal(t2) {
		t.Fatalf("last enqueue = %v; want %v", last, t2)
	}
}
