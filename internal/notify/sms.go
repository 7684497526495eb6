package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campus/internal/content"
)

// SMSSender delivers a notification body to one phone number.
type SMSSender interface {
	SendSMS(to, body string) error
}

// HTTPSMSSender posts messages to a Twilio-style REST gateway:
// form-encoded body, basic auth with account sid and token.
type HTTPSMSSender struct {
	client   *http.Client
	endpoint string
	account  string
	token    string
	from     string
}

func NewHTTPSMSSender(endpoint, account, token, from string) *HTTPSMSSender {
	return &HTTPSMSSender{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		account:  account,
		token:    token,
		from:     from,
	}
}

func (s *HTTPSMSSender) SendSMS(to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", content.StripTags(body))

	req, err := http.NewRequest(http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.SetBasicAuth(s.account, s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}
