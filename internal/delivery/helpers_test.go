package delivery

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// seedIssue creates an issue with one pending task per recipient.
func seedIssue(t *testing.T, db *gorm.DB, recipients ...string) *domain.NewsletterIssue {
	t.Helper()
	ctx := context.Background()
	is, err := repo.CreateIssue(ctx, db, "op", "T", "text", "<p>html</p>")
	require.NoError(t, err)
	n, err := repo.EnqueueDeliveryTasks(ctx, db, is.ID, recipients, time.Now())
	require.NoError(t, err)
	require.EqualValues(t, len(recipients), n)
	return is
}

func pending(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	n, err := repo.CountPendingDeliveries(context.Background(), db, "")
	require.NoError(t, err)
	return n
}

// fakeSender records every call. failFor scripts the error returned for the
// first calls to a recipient.
type fakeSender struct {
	mu      sync.Mutex
	calls   map[string]int
	ok      map[string]int
	failFor map[string][]error
	delay   time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		calls:   map[string]int{},
		ok:      map[string]int{},
		failFor: map[string][]error{},
	}
}

func (f *fakeSender) Send(ctx context.Context, msg email.Message) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[msg.To]++
	if errs := f.failFor[msg.To]; len(errs) > 0 {
		f.failFor[msg.To] = errs[1:]
		return errs[0]
	}
	f.ok[msg.To]++
	return nil
}

func (f *fakeSender) delivered() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.ok))
	for k, v := range f.ok {
		out[k] = v
	}
	return out
}

func (f *fakeSender) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

// drain runs single steps until the queue reports empty.
func drain(t *testing.T, w *Worker) int {
	t.Helper()
	steps := 0
	for {
		out, err := w.TryExecuteTask(context.Background())
		require.NoError(t, err)
		if out == EmptyQueue {
			return steps
		}
		steps++
		require.Less(t, steps, 1000, "queue does not drain")
	}
}

var transient = &email.SendError{StatusCode: 503, Err: context.DeadlineExceeded}
