package models

import (
	"testing"
	"time"
)

func TestNormalizeTimestamp(t *testing.T) {
	now := func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"RFC3339", "2024-03-15T08:00:00Z", "2024-03-15 08:00:00", true},
		{"RFC3339 with millis", "2024-03-15T08:00:00.123Z", "2024-03-15 08:00:00", true},
		{"RFC3339 with offset", "2024-03-15T10:00:00+02:00", "2024-03-15 08:00:00", true},
		{"Already normalized", "2024-03-15 08:00:00", "2024-03-15 08:00:00", true},
		{"Garbage", "yesterday", "2024-03-15 10:30:00", false},
		{"Empty", "", "2024-03-15 10:30:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.input, now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeTimestamp(%q) = (%q, %v), want (%q, %v)",
					tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFormatDateTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2024, 3, 15, 11, 30, 0, 0, loc)

	if got := FormatDateTime(in); got != "2024-03-15 08:30:00" {
		t.Errorf("FormatDateTime() = %q, want UTC rendering", got)
	}
}
