package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

func immediateRetry(max int) Options {
	return Options{Retry: RetryPolicy{MaxAttempts: max}, PollInterval: 10 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond}
}

func TestWorker_DrainSendsOncePerRecipient(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com", "b@example.com", "c@example.com")
	s := newFakeSender()
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	require.Equal(t, 3, drain(t, w))
	require.Equal(t, map[string]int{"a@example.com": 1, "b@example.com": 1, "c@example.com": 1}, s.delivered())
	require.Zero(t, pending(t, db))

	out, err := w.TryExecuteTask(context.Background())
	require.NoError(t, err)
	require.Equal(t, EmptyQueue, out)
}

func TestWorker_InvalidStoredAddressIsRetired(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "not-an-email", "ok@example.com")
	s := newFakeSender()
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	require.Equal(t, 2, drain(t, w))
	require.Equal(t, map[string]int{"ok@example.com": 1}, s.delivered())
	require.Equal(t, 1, s.totalCalls())
	require.Zero(t, pending(t, db))
}

func TestWorker_TransientFailureThenSuccess(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com", "b@example.com")
	s := newFakeSender()
	s.failFor["a@example.com"] = []error{transient}
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	drain(t, w)
	require.Equal(t, map[string]int{"a@example.com": 1, "b@example.com": 1}, s.delivered())
	require.Equal(t, 3, s.totalCalls())
	require.Zero(t, pending(t, db))
}

func TestWorker_RetiresAfterMaxAttempts(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com")
	s := newFakeSender()
	s.failFor["a@example.com"] = []error{transient, transient, transient, transient}
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(3))

	require.Equal(t, 3, drain(t, w))
	require.Equal(t, 3, s.totalCalls())
	require.Empty(t, s.delivered())
	require.Zero(t, pending(t, db))
}

func TestWorker_PermanentRejectionIsRetired(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com")
	s := newFakeSender()
	s.failFor["a@example.com"] = []error{&email.SendError{StatusCode: 422, Permanent: true, Err: errors.New("inactive recipient")}}
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	require.Equal(t, 1, drain(t, w))
	require.Equal(t, 1, s.totalCalls())
	require.Zero(t, pending(t, db))
}

func TestWorker_BackoffDefersNextAttempt(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com")
	s := newFakeSender()
	s.failFor["a@example.com"] = []error{transient}
	w := NewWorker(NewQueue(db, time.Minute), s, Options{Retry: RetryPolicy{MaxAttempts: 5, Base: time.Minute, Max: time.Hour}})

	require.Equal(t, 1, drain(t, w), "the failed task is not due again yet")
	require.EqualValues(t, 1, pending(t, db))

	base := time.Now()
	w.now = func() time.Time { return base.Add(2 * time.Minute) }
	require.Equal(t, 1, drain(t, w))
	require.Equal(t, map[string]int{"a@example.com": 1}, s.delivered())
	require.Zero(t, pending(t, db))
}

func TestWorker_ConcurrentWorkersNeverDuplicate(t *testing.T) {
	db := newFileDB(t)
	assertConcurrentDrainNoDuplicates(t, db, NewQueue(db, time.Minute))
}

// Skip-locked claims are only exclusive on a database that honours the
// locking clause; set DATABASE_URL to a scratch Postgres to run this.
func TestWorker_ConcurrentWorkersNeverDuplicate_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := repo.OpenPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	clean := func() {
		require.NoError(t, db.Exec("DELETE FROM delivery_tasks").Error)
		require.NoError(t, db.Exec("DELETE FROM newsletter_issues").Error)
	}
	clean()
	t.Cleanup(func() {
		clean()
		_ = sqlDB.Close()
	})

	q := NewQueue(db, time.Minute)
	require.IsType(t, &SkipLockedQueue{}, q)
	assertConcurrentDrainNoDuplicates(t, db, q)
}

func assertConcurrentDrainNoDuplicates(t *testing.T, db *gorm.DB, q Queue) {
	t.Helper()
	var recipients []string
	for i := 0; i < 40; i++ {
		recipients = append(recipients, fmt.Sprintf("r%02d@example.com", i))
	}
	seedIssue(t, db, recipients...)
	s := newFakeSender()
	s.delay = 5 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := NewWorker(q, s, immediateRetry(5))
			for {
				out, err := w.TryExecuteTask(context.Background())
				if err != nil {
					errs <- err
					return
				}
				if out == EmptyQueue {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := s.delivered()
	require.Len(t, got, len(recipients))
	for _, r := range recipients {
		require.Equal(t, 1, got[r], "recipient %s", r)
	}
	require.Equal(t, len(recipients), s.totalCalls())
	require.Zero(t, pending(t, db))
}

func TestWorker_RunDrainsAndStopsOnCancel(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com", "b@example.com")
	s := newFakeSender()
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunPool(ctx, 3) }()

	require.Eventually(t, func() bool { return len(s.delivered()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunPool did not stop after cancel")
	}
	require.Zero(t, pending(t, db))
}

func TestWorker_InFlightSendFinishesAfterShutdown(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com")
	s := newFakeSender()
	s.delay = 200 * time.Millisecond
	w := NewWorker(NewQueue(db, time.Minute), s, immediateRetry(5))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // task claimed, send in progress
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, map[string]int{"a@example.com": 1}, s.delivered())
	require.Zero(t, pending(t, db))
}

// flakyQueue fails a fixed number of times before reporting empty.
type flakyQueue struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (q *flakyQueue) Dequeue(context.Context, time.Time) (Claim, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.calls <= q.fails {
		return nil, errors.New("database is locked")
	}
	return nil, ErrQueueEmpty
}

func (q *flakyQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func TestWorker_StorageErrorsBackOffAndContinue(t *testing.T) {
	q := &flakyQueue{fails: 2}
	w := NewWorker(q, newFakeSender(), immediateRetry(5))

	_, err := w.TryExecuteTask(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return q.count() >= 4 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWorker_ThrottledLoopKeepsDraining(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com", "b@example.com", "c@example.com")
	s := newFakeSender()
	opts := immediateRetry(5)
	// One token every 200ms against a 40ms step deadline. A throttle wait
	// inside the step would fail and park the loop for ErrorBackoff.
	opts.SendRPS = 5
	opts.SendBurst = 1
	opts.SendTimeout = 20 * time.Millisecond
	opts.ErrorBackoff = time.Hour
	w := NewWorker(NewQueue(db, time.Minute), s, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.delivered()) == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 3, s.totalCalls())
	require.Zero(t, pending(t, db))
}

func TestWorker_ThrottleWaitDoesNotHoldClaim(t *testing.T) {
	db := newFileDB(t)
	seedIssue(t, db, "a@example.com", "b@example.com")
	s := newFakeSender()
	opts := immediateRetry(5)
	opts.SendRPS = 0.01
	opts.SendBurst = 1
	opts.SendTimeout = 100 * time.Millisecond
	q := NewQueue(db, time.Minute)
	w := NewWorker(q, s, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.delivered()) == 1 }, 5*time.Second, 10*time.Millisecond)
	// The loop is now waiting for its next token; the remaining task must
	// still be claimable by someone else.
	time.Sleep(50 * time.Millisecond)
	c, err := q.Dequeue(context.Background(), time.Now())
	require.NoError(t, err)
	require.NoError(t, c.Release(context.Background()))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop while waiting on the send limiter")
	}
	require.Equal(t, 1, s.totalCalls())
	require.EqualValues(t, 1, pending(t, db))
}

func TestExecutionOutcome_String(t *testing.T) {
	require.Equal(t, "task_completed", TaskCompleted.String())
	require.Equal(t, "empty_queue", EmptyQueue.String())
	require.Equal(t, "unknown", ExecutionOutcome(0).String())
}
