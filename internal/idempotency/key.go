package idempotency

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// DefaultKeyMaxLen is the maximum key length in runes when none is configured.
const DefaultKeyMaxLen = 50

// ErrInvalidKey is returned for empty, oversized, or non-printable keys. It
// is a validation error and never touches the ledger.
var ErrInvalidKey = errors.New("invalid idempotency key")

// Key is a caller-supplied token identifying one logical submission. Keys are
// scoped per user.
type Key string

// String returns the raw key.
func (k Key) String() string { return string(k) }

// ParseKey validates s. maxLen <= 0 selects DefaultKeyMaxLen.
func ParseKey(s string, maxLen int) (Key, error) {
	if maxLen <= 0 {
		maxLen = DefaultKeyMaxLen
	}
	if s == "" {
		return "", fmt.Errorf("%w: must not be empty", ErrInvalidKey)
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: must be valid UTF-8", ErrInvalidKey)
	}
	if n := utf8.RuneCountInString(s); n > maxLen {
		return "", fmt.Errorf("%w: must be at most %d characters", ErrInvalidKey, maxLen)
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: must contain printable characters only", ErrInvalidKey)
		}
	}
	return Key(s), nil
}
