package notify

import (
	"encoding/json"
	"fmt"

	"campus/internal/models"

	"github.com/SherClockHolmes/webpush-go"
)

// PushSender delivers a payload to one stored browser subscription.
type PushSender interface {
	SendPush(sub models.PushSubscription, payload []byte) error
}

// WebPushSender sends VAPID-signed web push messages.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string
}

func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

func (s *WebPushSender) SendPush(sub models.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("web push failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push service returned %s", resp.Status)
	}
	return nil
}

// pushPayload is what the service worker on the other end unpacks.
func pushPayload(title, body string) []byte {
	p, _ := json.Marshal(map[string]string{"title": title, "body": body})
	return p
}
