package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"campus/internal/content"
	"campus/internal/models"
)

// Store is the persistence surface the notifier needs.
type Store interface {
	GetUser(id int64) (models.User, error)
	ListUsersByRole(roles ...models.Role) ([]models.User, error)
	InsertNotification(n models.Notification) (models.Notification, error)
	InsertAnnouncement(a models.Announcement) (models.Announcement, error)
	ListPushSubscriptions() ([]models.PushSubscription, error)
	ListPushSubscriptionsForUser(userID int64) ([]models.PushSubscription, error)
}

// Broadcaster pushes events to live socket sessions.
type Broadcaster interface {
	EmitToUser(userID int64, ev models.ServerEvent)
	EmitToAll(ev models.ServerEvent)
}

// DeliveryResult reports per-recipient outcomes of the out-of-band
// channels. Channel failures are data, not errors: the notification is
// already persisted and broadcast when these are produced.
type DeliveryResult struct {
	RecipientID int64  `json:"recipientId"`
	EmailSent   bool   `json:"emailSent"`
	EmailError  string `json:"emailError,omitempty"`
	SMSSent     bool   `json:"smsSent"`
	SMSError    string `json:"smsError,omitempty"`
}

// Notifier fans administrative notifications and announcements out to
// persistence, live sockets, email, SMS and web push.
type Notifier struct {
	store Store
	hub   Broadcaster
	email EmailSender
	sms   SMSSender
	push  PushSender
	now   func() time.Time
}

// NewNotifier wires the delivery channels. Any sender may be nil;
// deliveries on that channel are then reported as not configured.
func NewNotifier(store Store, hub Broadcaster, email EmailSender, sms SMSSender, push PushSender) *Notifier {
	return &Notifier{
		store: store,
		hub:   hub,
		email: email,
		sms:   sms,
		push:  push,
		now:   time.Now,
	}
}

// SendNotification persists the notification, resolves its audience,
// delivers email and SMS per recipient in parallel, fires web push
// best-effort, and pushes the socket event. A nil recipient means
// every student and lecturer.
func (n *Notifier) SendNotification(senderID int64, recipientID *int64, message, typ string) (models.Notification, []DeliveryResult, error) {
	sender, err := n.store.GetUser(senderID)
	if err != nil {
		return models.Notification{}, nil, fmt.Errorf("failed to resolve sender: %w", err)
	}

	notification := models.Notification{
		SenderID:    senderID,
		RecipientID: recipientID,
		Message:     content.Sanitize(message),
		Type:        typ,
		SentAt:      models.FormatDateTime(n.now()),
		SenderName:  sender.Name,
	}
	notification, err = n.store.InsertNotification(notification)
	if err != nil {
		return models.Notification{}, nil, fmt.Errorf("failed to store notification: %w", err)
	}

	recipients, err := n.resolveRecipients(recipientID)
	if err != nil {
		return models.Notification{}, nil, err
	}

	subject := "Notification from " + sender.Name
	results := make([]DeliveryResult, len(recipients))

	var wg sync.WaitGroup
	for i, recipient := range recipients {
		wg.Go(func() {
			results[i] = n.deliver(recipient, subject, notification.Message)
		})
	}
	wg.Wait()

	n.pushOut(recipientID, subject, notification.Message)

	ev := models.ServerEvent{
		Type:         models.ServerEventReceiveNotification,
		Notification: &notification,
	}
	if recipientID != nil {
		n.hub.EmitToUser(*recipientID, ev)
	} else {
		n.hub.EmitToAll(ev)
	}

	return notification, results, nil
}

func (n *Notifier) resolveRecipients(recipientID *int64) ([]models.User, error) {
	if recipientID != nil {
		user, err := n.store.GetUser(*recipientID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipient %d: %w", *recipientID, err)
		}
		return []models.User{user}, nil
	}

	users, err := n.store.ListUsersByRole(models.RoleStudent, models.RoleLecturer)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return users, nil
}

// deliver runs the email and SMS channels for one recipient. Missing
// contact details and sender failures end up in the result.
func (n *Notifier) deliver(recipient models.User, subject, message string) DeliveryResult {
	result := DeliveryResult{RecipientID: recipient.ID}

	switch {
	case n.email == nil:
		result.EmailError = "email delivery not configured"
	case recipient.Email == "":
		result.EmailError = "no email address on record"
	default:
		if err := n.email.SendEmail(recipient.Email, subject, message); err != nil {
			slog.Warn("email delivery failed", "recipient_id", recipient.ID, "error", err)
			result.EmailError = err.Error()
		} else {
			result.EmailSent = true
		}
	}

	switch {
	case n.sms == nil:
		result.SMSError = "sms delivery not configured"
	case recipient.Phone == "":
		result.SMSError = "no phone number on record"
	default:
		if err := n.sms.SendSMS(recipient.Phone, message); err != nil {
			slog.Warn("sms delivery failed", "recipient_id", recipient.ID, "error", err)
			result.SMSError = err.Error()
		} else {
			result.SMSSent = true
		}
	}

	return result
}

// pushOut sends web push to the stored subscriptions of the audience.
// Failures are logged and otherwise ignored.
func (n *Notifier) pushOut(recipientID *int64, title, body string) {
	if n.push == nil {
		return
	}

	var subs []models.PushSubscription
	var err error
	if recipientID != nil {
		subs, err = n.store.ListPushSubscriptionsForUser(*recipientID)
	} else {
		subs, err = n.store.ListPushSubscriptions()
	}
	if err != nil {
		slog.Warn("failed to list push subscriptions", "error", err)
		return
	}

	payload := pushPayload(title, body)
	for _, sub := range subs {
		if err := n.push.SendPush(sub, payload); err != nil {
			slog.Warn("web push failed", "user_id", sub.UserID, "error", err)
		}
	}
}

// SendAnnouncement persists the announcement and broadcasts it to every
// connected session and every push subscription.
func (n *Notifier) SendAnnouncement(senderID int64, message string) (models.Announcement, error) {
	sender, err := n.store.GetUser(senderID)
	if err != nil {
		return models.Announcement{}, fmt.Errorf("failed to resolve sender: %w", err)
	}

	announcement := models.Announcement{
		SenderID:   senderID,
		Message:    content.Sanitize(message),
		SentAt:     models.FormatDateTime(n.now()),
		SenderName: sender.Name,
	}
	announcement, err = n.store.InsertAnnouncement(announcement)
	if err != nil {
		return models.Announcement{}, fmt.Errorf("failed to store announcement: %w", err)
	}

	n.hub.EmitToAll(models.ServerEvent{
		Type:         models.ServerEventReceiveAnnouncement,
		Announcement: &announcement,
	})
	n.pushOut(nil, "Announcement from "+sender.Name, announcement.Message)

	return announcement, nil
}
