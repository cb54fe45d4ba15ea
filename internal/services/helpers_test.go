package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/idempotency"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// newTestDB opens a WAL database on disk so concurrent writers wait on
// busy_timeout instead of failing.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// recordingSender captures messages; delay applies to every send.
type recordingSender struct {
	mu    sync.Mutex
	sent  []email.Message
	err   error
	delay time.Duration
}

func (r *recordingSender) Send(ctx context.Context, msg email.Message) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) messages() []email.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]email.Message(nil), r.sent...)
}

// confirmedSubscriber inserts a confirmed row directly, bypassing
// validation so tests can plant bad addresses.
func confirmedSubscriber(t *testing.T, db *gorm.DB, addr string) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        addr,
		Name:         "Reader",
		SubscribedAt: time.Now().UTC(),
		Status:       domain.StatusConfirmed,
	}).Error)
}

func newNewsletterService(db *gorm.DB) *NewsletterService {
	return &NewsletterService{
		DB:          db,
		Ledger:      idempotency.NewLedger(db),
		Subscribers: &SubscriptionService{DB: db},
		BasePath:    "/api/v1",
		KeyMaxLen:   idempotency.DefaultKeyMaxLen,
	}
}

func publishInput(key string) PublishInput {
	return PublishInput{
		UserID:         "admin",
		Title:          "T",
		HTMLContent:    "<p>Newsletter body as HTML</p>",
		TextContent:    "Newsletter body as plain text",
		IdempotencyKey: key,
	}
}

// linkToken extracts the confirmation token from a welcome email.
func linkToken(t *testing.T, msg email.Message) string {
	t.Helper()
	const marker = "subscription_token="
	i := strings.Index(msg.TextBody, marker)
	require.GreaterOrEqual(t, i, 0, "no confirmation link in %q", msg.TextBody)
	tok := msg.TextBody[i+len(marker):]
	if j := strings.IndexAny(tok, " \n"); j >= 0 {
		tok = tok[:j]
	}
	return tok
}
