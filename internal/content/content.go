package content

import (
	"bytes"
	"errors"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	policy        = bluemonday.UGCPolicy()
	strictPolicy  = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	markdown      = goldmark.New()
)

// Sanitize removes unsafe HTML from the input string using a strict
// user-generated-content policy. Applied to message and notification
// bodies before they are stored or broadcast.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// StripTags removes all HTML, leaving plain text. Used for SMS bodies.
func StripTags(input string) string {
	return strictPolicy.Sanitize(input)
}

// RenderHTML renders a notification or announcement body as sanitized
// HTML for email delivery. Bodies are treated as Markdown.
func RenderHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
