package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// MaxNameRunes bounds subscriber names and issue titles.
const MaxNameRunes = 256

// Validation errors for subscriber input.
var (
	ErrInvalidEmail = errors.New("invalid subscriber email")
	ErrInvalidName  = errors.New("invalid subscriber name")
)

var validate = validator.New()

// forbiddenNameChars may not appear anywhere in a subscriber name.
const forbiddenNameChars = `/()"<>\{}`

// SubscriberEmail is an address that passed validation.
type SubscriberEmail string

// String returns the address.
func (e SubscriberEmail) String() string { return string(e) }

// ParseSubscriberEmail validates s as an email address. Surrounding
// whitespace is not accepted.
func ParseSubscriberEmail(s string) (SubscriberEmail, error) {
	if s != strings.TrimSpace(s) {
		return "", ErrInvalidEmail
	}
	if err := validate.Var(s, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	return SubscriberEmail(s), nil
}

// SubscriberName is a normalized, validated display name.
type SubscriberName string

// ParseSubscriberName trims and NFC-normalizes s, then rejects empty names,
// names longer than MaxNameRunes, and names containing any of /()"<>\{}.
func ParseSubscriberName(s string) (SubscriberName, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" || utf8.RuneCountInString(s) > MaxNameRunes {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(s, forbiddenNameChars) {
		return "", ErrInvalidName
	}
	return SubscriberName(s), nil
}
