package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		max   int
		valid bool
	}{
		{"simple", "abc-123", 0, true},
		{"unicode printable", "ключ-✓", 0, true},
		{"exactly max", strings.Repeat("k", 50), 0, true},
		{"custom max", strings.Repeat("k", 64), 64, true},
		{"empty", "", 0, false},
		{"too long", strings.Repeat("k", 51), 0, false},
		{"control char", "abc\n", 0, false},
		{"nul", "a\x00b", 0, false},
		{"invalid utf8", "\xff\xfe", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, err := ParseKey(tc.in, tc.max)
			if tc.valid {
				require.NoError(t, err)
				require.Equal(t, tc.in, k.String())
				return
			}
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}
