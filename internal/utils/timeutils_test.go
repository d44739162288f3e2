package utils

import (
	"testing"
	"time"
)

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2026-03-14T09:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := ParseRFC3339(""); err == nil {
		t.Fatal("expected error for empty value")
	}
	if _, err := ParseRFC3339("not-a-time"); err == nil {
		t.Fatal("expected error for malformed value")
	}
}

func TestFormatHours(t *testing.T) {
	cases := []struct {
		hours float64
		want  string
	}{
		{-1, "0m"},
		{0.5, "30m"},
		{3.25, "3.2h"},
		{72, "3.0d"},
	}
	for _, tc := range cases {
		if got := FormatHours(tc.hours); got != tc.want {
			t.Fatalf("FormatHours(%v): expected %q, got %q", tc.hours, tc.want, got)
		}
	}
}

func TestFormatSince(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if got := FormatSince(now.Add(-30*time.Minute), now); got != "30m ago" {
		t.Fatalf("expected \"30m ago\", got %q", got)
	}
	if got := FormatSince(time.Time{}, now); got != "just now" {
		t.Fatalf("expected \"just now\", got %q", got)
	}
	if got := FormatSince(now.Add(time.Minute), now); got != "just now" {
		t.Fatalf("expected \"just now\" for future time, got %q", got)
	}
}
