package models

import "time"

// DateTimeLayout is the canonical form timestamps are stored in.
const DateTimeLayout = "2006-01-02 15:04:05"

// FormatDateTime renders t in the canonical stored form (UTC).
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// wire timestamps come from browsers and are usually RFC 3339, but
// clients have been seen sending the stored form back verbatim.
var wireLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	DateTimeLayout,
}

// NormalizeTimestamp converts a client-supplied timestamp to the
// canonical stored form. If raw cannot be parsed the current time is
// substituted and ok is false so the caller can log the correction.
func NormalizeTimestamp(raw string, now func() time.Time) (normalized string, ok bool) {
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return FormatDateTime(t), true
		}
	}
	return FormatDateTime(now()), false
}
