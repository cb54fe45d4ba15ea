// Package domain defines the persistence models for newsletter issues,
// subscribers, and the delivery queue. These types are mapped with GORM and
// form the core data layer of the newsletter application.
package domain

import "time"

// Subscription statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// NewsletterIssue is a published newsletter. Issues are immutable once
// created; one row exists per accepted publish command.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title: NFC-normalized title, at most 256 runes.
//   - TextContent / HTMLContent: the two renditions sent to every recipient.
//   - PublishedBy: operator who issued the publish command.
//   - PublishedAt: acceptance timestamp; indexed for newest-first listings.
type NewsletterIssue struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Title       string    `json:"title"        gorm:"type:varchar(1024);not null"`
	TextContent string    `json:"text_content" gorm:"type:text;not null"`
	HTMLContent string    `json:"html_content" gorm:"type:text;not null"`
	PublishedBy string    `json:"published_by" gorm:"type:varchar(64);not null"`
	PublishedAt time.Time `json:"published_at" gorm:"not null;index:idx_issues_published"`
}

// TableName returns the database table name for NewsletterIssue.
func (NewsletterIssue) TableName() string { return "newsletter_issues" }

// Subscriber is a newsletter subscription. The stored email is not
// re-validated on write by older rows, so readers must parse it again with
// ParseSubscriberEmail before use.
type Subscriber struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email"         gorm:"type:varchar(320);not null;uniqueIndex:ux_subscriptions_email"`
	Name         string    `json:"name"          gorm:"type:varchar(1024);not null"`
	SubscribedAt time.Time `json:"subscribed_at" gorm:"not null"`
	Status       string    `json:"status"        gorm:"type:varchar(32);not null;index;check:status IN ('pending_confirmation','confirmed')"`
}

// TableName returns the database table name for Subscriber.
func (Subscriber) TableName() string { return "subscriptions" }

// SubscriptionToken links a confirmation token to its subscriber. Tokens are
// removed together with the subscriber.
type SubscriptionToken struct {
	Token        string `gorm:"column:subscription_token;type:varchar(64);primaryKey"`
	SubscriberID string `gorm:"type:char(36);not null;index"`

	Subscriber Subscriber `gorm:"foreignKey:SubscriberID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SubscriptionToken.
func (SubscriptionToken) TableName() string { return "subscription_tokens" }

// DeliveryTask is one pending (issue, recipient) send. A row exists only
// while delivery is outstanding; it is deleted once the send succeeded or the
// task was retired.
//
// Scheduling columns hold unix nanoseconds so that range comparisons stay
// exact on every backend.
//
// Fields:
//   - NewsletterIssueID / SubscriberEmail: unique pair, one task per recipient.
//   - Attempts: failed send attempts so far.
//   - NextAttemptAt: earliest time the task may be claimed.
//   - ClaimedUntil: lease expiry for the lease claim strategy; 0 means free.
//   - ClaimToken: identifies the current lease holder.
type DeliveryTask struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	NewsletterIssueID string    `gorm:"type:char(36);not null;uniqueIndex:ux_delivery_issue_email,priority:1"`
	SubscriberEmail   string    `gorm:"type:varchar(320);not null;uniqueIndex:ux_delivery_issue_email,priority:2"`
	Attempts          int       `gorm:"not null;default:0"`
	NextAttemptAt     int64     `gorm:"not null;default:0;index:idx_delivery_due,priority:1"`
	ClaimedUntil      int64     `gorm:"not null;default:0;index:idx_delivery_due,priority:2"`
	ClaimToken        string    `gorm:"type:varchar(64);not null;default:''"`
	EnqueuedAt        time.Time `gorm:"not null"`

	Issue NewsletterIssue `gorm:"foreignKey:NewsletterIssueID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeliveryTask.
func (DeliveryTask) TableName() string { return "delivery_tasks" }
