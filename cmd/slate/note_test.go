package main

import (
	"testing"
	"time"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

	tests := []struct {
		text    string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), false},
		{"2026-03-01T08:30:00Z", time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), false},
		{"2026-03-01T08:30:00.250Z", time.Date(2026, 3, 1, 8, 30, 0, 250e6, time.UTC), false},
		{"qwxzv", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := parseSince(tt.text, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSince() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSince_Natural(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince() failed: %v", err)
	}
	if !got.Before(now) || now.Sub(got) > 48*time.Hour {
		t.Errorf("parseSince(yesterday) = %v, want about a day before %v", got, now)
	}
}
