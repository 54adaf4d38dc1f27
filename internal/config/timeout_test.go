// SPDX-License-Identifier: MPL-2.0

package config

import (
	"testing"
	"time"
)

func TestParseTimeout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"500", 500 * time.Millisecond},
		{"500ms", 500 * time.Millisecond},
		{"5s", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"1h", time.Hour},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeout(tc.in)
			if err != nil {
				t.Fatalf("ParseTimeout(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseTimeout(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseTimeoutInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseTimeout("abc"); err == nil {
		t.Error("expected error for non-numeric timeout")
	}
}
