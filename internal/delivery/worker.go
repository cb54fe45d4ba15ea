package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
)

// ExecutionOutcome is the result of one TryExecuteTask call.
type ExecutionOutcome int

const (
	// TaskCompleted means a task was claimed and settled (sent, retired, or
	// rescheduled).
	TaskCompleted ExecutionOutcome = iota + 1
	// EmptyQueue means no task was due.
	EmptyQueue
)

func (o ExecutionOutcome) String() string {
	switch o {
	case TaskCompleted:
		return "task_completed"
	case EmptyQueue:
		return "empty_queue"
	default:
		return "unknown"
	}
}

// Options tunes a Worker. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration // sleep after an empty poll
	ErrorBackoff time.Duration // sleep after an unexpected error
	SendTimeout  time.Duration // bound on a single transport call
	Retry        RetryPolicy
	SendRPS      float64 // 0 disables throttling
	SendBurst    int
}

func (o *Options) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = DefaultRetryPolicy
	}
	if o.SendBurst < 1 {
		o.SendBurst = 1
	}
}

// Worker drains a Queue through a mail transport. One Worker may be shared
// by several loops; the send limiter is then shared as well. The limiter
// paces Run and RunPool; direct TryExecuteTask calls are not throttled.
type Worker struct {
	queue   Queue
	sender  email.Sender
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
}

// NewWorker returns a worker for queue and sender.
func NewWorker(queue Queue, sender email.Sender, opts Options) *Worker {
	opts.withDefaults()
	w := &Worker{
		queue:  queue,
		sender: sender,
		opts:   opts,
		now:    time.Now,
	}
	if opts.SendRPS > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.SendRPS), opts.SendBurst)
	}
	if lq, ok := queue.(*LeaseQueue); ok && lq.ttl <= 2*opts.SendTimeout {
		log.Warn().Dur("lease_ttl", lq.ttl).Dur("send_timeout", opts.SendTimeout).
			Msg("delivery lease is shorter than a claim; slow sends may be delivered twice")
	}
	return w
}

// TryExecuteTask claims at most one due task and settles it.
//
// Unparseable recipient addresses and permanent transport rejections retire
// the task. Transient failures reschedule it with backoff until the retry
// policy is exhausted, after which the task is retired as well. The returned
// error is reserved for storage failures; the task then stays claimed until
// its transaction or lease ends.
func (w *Worker) TryExecuteTask(ctx context.Context) (ExecutionOutcome, error) {
	tr := otel.Tracer("delivery/Worker")
	ctx, span := tr.Start(ctx, "TryExecuteTask")
	defer span.End()

	claim, err := w.queue.Dequeue(ctx, w.now())
	if errors.Is(err, ErrQueueEmpty) {
		span.SetAttributes(attribute.String("outcome", EmptyQueue.String()))
		return EmptyQueue, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dequeue")
		return 0, fmt.Errorf("dequeue: %w", err)
	}

	job := claim.Job()
	span.SetAttributes(
		attribute.String("task.id", job.Task.ID),
		attribute.String("issue.id", job.Task.NewsletterIssueID),
		attribute.Int("attempt", job.Task.Attempts+1),
	)
	logger := log.With().
		Str("task_id", job.Task.ID).
		Str("issue_id", job.Task.NewsletterIssueID).
		Int("attempt", job.Task.Attempts+1).
		Logger()

	if err := w.settle(ctx, claim, job, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle")
		return 0, err
	}
	return TaskCompleted, nil
}

func (w *Worker) settle(ctx context.Context, claim Claim, job Job, logger zerolog.Logger) error {
	addr, err := domain.ParseSubscriberEmail(job.Task.SubscriberEmail)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping a confirmed subscriber: stored contact details are invalid")
		return w.finish(ctx, claim, outcomeRetiredInvalid)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.opts.SendTimeout)
	start := time.Now()
	sendErr := w.sender.Send(sendCtx, email.Message{
		To:       addr.String(),
		Subject:  job.Issue.Title,
		HTMLBody: job.Issue.HTMLContent,
		TextBody: job.Issue.TextContent,
	})
	cancel()
	sendSeconds.Observe(time.Since(start).Seconds())

	failures := job.Task.Attempts + 1
	switch {
	case sendErr == nil:
		logger.Debug().Msg("newsletter delivered")
		return w.finish(ctx, claim, outcomeSent)

	case email.IsPermanent(sendErr):
		logger.Error().Err(sendErr).Msg("recipient rejected by mail transport, retiring task")
		return w.finish(ctx, claim, outcomeRetiredPermanent)

	case w.opts.Retry.Exhausted(failures):
		logger.Error().Err(sendErr).Int("max_attempts", w.opts.Retry.MaxAttempts).
			Msg("delivery failed too many times, retiring task")
		return w.finish(ctx, claim, outcomeRetiredExhausted)

	default:
		delay := w.opts.Retry.Delay(failures)
		logger.Warn().Err(sendErr).Dur("retry_in", delay).Msg("delivery failed, will retry")
		if err := claim.Retry(ctx, w.now().Add(delay)); err != nil {
			return w.claimErr(err, logger)
		}
		tasksTotal.WithLabelValues(outcomeRetried).Inc()
		return nil
	}
}

func (w *Worker) finish(ctx context.Context, claim Claim, outcome string) error {
	if err := claim.Complete(ctx); err != nil {
		return w.claimErr(err, log.With().Str("task_id", claim.Job().Task.ID).Logger())
	}
	tasksTotal.WithLabelValues(outcome).Inc()
	return nil
}

// claimErr turns a lost lease into a logged non-event; the new holder owns
// the task now.
func (w *Worker) claimErr(err error, logger zerolog.Logger) error {
	if errors.Is(err, ErrClaimLost) {
		logger.Warn().Msg("lease expired before the task was settled")
		return nil
	}
	return fmt.Errorf("settle task: %w", err)
}

// Run calls TryExecuteTask until ctx is cancelled. An empty queue sleeps for
// PollInterval; storage errors are logged, reported, and followed by
// ErrorBackoff. A task already claimed when ctx is cancelled is still
// settled, bounded by twice the send timeout.
func (w *Worker) Run(ctx context.Context) error {
	return w.run(ctx, 0)
}

// RunPool runs n loops sharing this worker and waits for all of them.
func (w *Worker) RunPool(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := i
		g.Go(func() error { return w.run(gctx, id) })
	}
	return g.Wait()
}

func (w *Worker) run(ctx context.Context, id int) error {
	logger := log.With().Str("component", "delivery_worker").Int("worker", id).Logger()
	logger.Info().Msg("delivery worker started")
	defer logger.Info().Msg("delivery worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Throttle before claiming so a slow limiter never holds a lease or
		// a row lock. Wait only fails once ctx is cancelled.
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*w.opts.SendTimeout)
		outcome, err := w.TryExecuteTask(taskCtx)
		cancel()

		var pause time.Duration
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("delivery worker step failed")
			sentry.CaptureException(err)
			pause = w.opts.ErrorBackoff
		case outcome == EmptyQueue:
			pause = w.opts.PollInterval
		default:
			continue
		}

		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
