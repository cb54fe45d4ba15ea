package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSubscriberEmail(t *testing.T) {
	for _, ok := range []string{"ursula@example.com", "a.b+c@sub.domain.org"} {
		if got, err := ParseSubscriberEmail(ok); err != nil || got.String() != ok {
			t.Fatalf("ParseSubscriberEmail(%q) = %q, %v", ok, got, err)
		}
	}
	for _, bad := range []string{"", "ursuladomain.com", "@domain.com", " a@example.com", "not an email"} {
		if _, err := ParseSubscriberEmail(bad); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("ParseSubscriberEmail(%q) err = %v; want ErrInvalidEmail", bad, err)
		}
	}
}

func TestParseSubscriberName(t *testing.T) {
	if got, err := ParseSubscriberName("  Ursula Le Guin "); err != nil || got != "Ursula Le Guin" {
		t.Fatalf("got %q, %v", got, err)
	}
	// 256 multi-byte runes are still fine.
	if _, err := ParseSubscriberName(strings.Repeat("ё", MaxNameRunes)); err != nil {
		t.Fatalf("256 runes should be accepted: %v", err)
	}
	bad := []string{"", "   ", strings.Repeat("a", MaxNameRunes+1)}
	for _, c := range forbiddenNameChars {
		bad = append(bad, "name"+string(c))
	}
	for _, b := range bad {
		if _, err := ParseSubscriberName(b); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("ParseSubscriberName(%q) err = %v; want ErrInvalidName", b, err)
		}
	}
}
