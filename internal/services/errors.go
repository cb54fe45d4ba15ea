// Package services defines the business logic for publishing newsletter
// issues and managing subscriptions. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Newsletter errors.
var (
	// ErrInvalidTitle is returned when a title is empty or longer than 256
	// characters after normalization.
	ErrInvalidTitle = errors.New("title must be between 1 and 256 characters")

	// ErrEmptyContent is returned when the HTML or text body is empty.
	ErrEmptyContent = errors.New("newsletter content must not be empty")

	// ErrIssueNotFound indicates that the requested issue does not exist.
	ErrIssueNotFound = errors.New("newsletter issue not found")

	// ErrPublishFailed wraps storage failures on the publish path. Nothing
	// was committed when it is returned.
	ErrPublishFailed = errors.New("failed to publish newsletter issue")
)

// Subscription errors.
var (
	// ErrInvalidSubscriber is returned for malformed names or emails.
	ErrInvalidSubscriber = errors.New("invalid subscriber data")

	// ErrAlreadySubscribed is returned when the email is already registered.
	ErrAlreadySubscribed = errors.New("email already subscribed")

	// ErrConfirmationEmail is returned when the confirmation email could not
	// be sent; the subscription is rolled back.
	ErrConfirmationEmail = errors.New("failed to send confirmation email")

	// ErrMissingToken is returned when no confirmation token was supplied.
	ErrMissingToken = errors.New("missing subscription token")

	// ErrUnknownToken is returned for tokens that match no subscriber.
	ErrUnknownToken = errors.New("unknown subscription token")
)
