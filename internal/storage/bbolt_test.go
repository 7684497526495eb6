package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"campus/internal/models"
)

func TestStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	t.Run("Users", func(t *testing.T) {
		alice, err := store.CreateUser(models.User{
			Username: "alice",
			Name:     "Alice",
			Email:    "alice@campus.test",
			Role:     models.RoleStudent,
		}, "hash1")
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if alice.ID == 0 {
			t.Error("expected generated id")
		}
		if alice.CreatedAt == "" {
			t.Error("expected creation timestamp")
		}

		_, err = store.CreateUser(models.User{Username: "alice"}, "hash2")
		if !errors.Is(err, models.ErrExists) {
			t.Errorf("expected ErrExists for duplicate username, got %v", err)
		}

		got, hash, err := store.GetUserByUsername("alice")
		if err != nil {
			t.Fatalf("GetUserByUsername failed: %v", err)
		}
		if got.ID != alice.ID || hash != "hash1" {
			t.Errorf("wrong user or hash: %+v %q", got, hash)
		}

		byID, err := store.GetUser(alice.ID)
		if err != nil || byID.Username != "alice" {
			t.Errorf("GetUser failed: %v %+v", err, byID)
		}

		if _, err := store.GetUser(999); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if _, err := store.CreateUser(models.User{Username: "bob", Role: models.RoleLecturer}, "h"); err != nil {
			t.Fatal(err)
		}
		if _, err := store.CreateUser(models.User{Username: "root", Role: models.RoleAdmin}, "h"); err != nil {
			t.Fatal(err)
		}

		staff, err := store.ListUsersByRole(models.RoleStudent, models.RoleLecturer)
		if err != nil {
			t.Fatalf("ListUsersByRole failed: %v", err)
		}
		if len(staff) != 2 {
			t.Errorf("expected 2 non-admin users, got %d", len(staff))
		}

		all, err := store.ListUsers()
		if err != nil || len(all) != 3 {
			t.Errorf("expected 3 users, got %d (%v)", len(all), err)
		}
	})

	t.Run("Messages", func(t *testing.T) {
		recipient := int64(2)
		id1, err := store.InsertMessage("1-2", models.Message{
			SenderID:    1,
			RecipientID: &recipient,
			Body:        "hello",
			Timestamp:   "2024-03-15 09:00:00",
		})
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}

		id2, err := store.InsertMessage("group_x", models.Message{
			SenderID:  1,
			Body:      "group hello",
			Timestamp: "2024-03-15 09:01:00",
		})
		if err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
		if id2 == id1 {
			t.Error("message ids must be unique across rooms")
		}

		if _, err := store.InsertMessage("1-2", models.Message{
			SenderID:    2,
			RecipientID: &recipient,
			Body:        "hi back",
			Timestamp:   "2024-03-15 09:02:00",
		}); err != nil {
			t.Fatal(err)
		}

		msgs, err := store.ListMessages("1-2")
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Body != "hello" || msgs[1].Body != "hi back" {
			t.Errorf("messages out of order: %+v", msgs)
		}
		if msgs[0].RecipientID == nil || *msgs[0].RecipientID != recipient {
			t.Errorf("recipient lost: %+v", msgs[0])
		}

		empty, err := store.ListMessages("no-such-room")
		if err != nil || len(empty) != 0 {
			t.Errorf("expected empty history, got %v (%v)", empty, err)
		}
	})

	t.Run("Groups", func(t *testing.T) {
		group, err := store.CreateGroup(models.Group{
			RoomID:    "group_abc",
			Name:      "Cohort 1",
			CreatedBy: 1,
		}, []int64{1, 2, 2, 3})
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if group.ID == 0 || group.CreatedAt == "" {
			t.Errorf("group not filled in: %+v", group)
		}

		byRoom, err := store.GetGroupByRoom("group_abc")
		if err != nil || byRoom.ID != group.ID {
			t.Errorf("GetGroupByRoom failed: %v %+v", err, byRoom)
		}

		byID, err := store.GetGroup(group.ID)
		if err != nil || byID.Name != "Cohort 1" {
			t.Errorf("GetGroup failed: %v %+v", err, byID)
		}

		members, err := store.ListGroupMembers(group.ID)
		if err != nil {
			t.Fatalf("ListGroupMembers failed: %v", err)
		}
		if len(members) != 3 {
			t.Errorf("expected 3 deduplicated members, got %d", len(members))
		}

		groups, err := store.ListGroupsForUser(2)
		if err != nil || len(groups) != 1 || groups[0].ID != group.ID {
			t.Errorf("ListGroupsForUser failed: %v %+v", err, groups)
		}

		none, err := store.ListGroupsForUser(99)
		if err != nil || len(none) != 0 {
			t.Errorf("expected no groups for outsider, got %+v", none)
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		target := int64(2)
		n1, err := store.InsertNotification(models.Notification{
			SenderID:    1,
			RecipientID: &target,
			Message:     "see me after class",
			Type:        "direct",
			SentAt:      "2024-03-15 09:00:00",
		})
		if err != nil {
			t.Fatalf("InsertNotification failed: %v", err)
		}
		if n1.ID == 0 {
			t.Error("expected generated id")
		}

		if _, err := store.InsertNotification(models.Notification{
			SenderID: 1,
			Message:  "campus closed friday",
			Type:     "broadcast",
			SentAt:   "2024-03-15 09:01:00",
		}); err != nil {
			t.Fatal(err)
		}

		all, err := store.ListNotifications()
		if err != nil || len(all) != 2 {
			t.Errorf("expected 2 notifications, got %d (%v)", len(all), err)
		}

		forTarget, err := store.ListNotificationsForUser(target)
		if err != nil || len(forTarget) != 2 {
			t.Errorf("expected targeted + broadcast for user 2, got %d", len(forTarget))
		}

		forOther, err := store.ListNotificationsForUser(3)
		if err != nil || len(forOther) != 1 {
			t.Errorf("expected broadcast only for user 3, got %d", len(forOther))
		}
	})

	t.Run("Announcements", func(t *testing.T) {
		a, err := store.InsertAnnouncement(models.Announcement{
			SenderID: 1,
			Message:  "exam schedule published",
			SentAt:   "2024-03-15 09:00:00",
		})
		if err != nil {
			t.Fatalf("InsertAnnouncement failed: %v", err)
		}
		if a.ID == 0 {
			t.Error("expected generated id")
		}

		list, err := store.ListAnnouncements()
		if err != nil || len(list) != 1 {
			t.Errorf("expected 1 announcement, got %d (%v)", len(list), err)
		}
	})

	t.Run("PushSubscriptions", func(t *testing.T) {
		sub := models.PushSubscription{
			UserID:   2,
			Endpoint: "https://push.example/ep1",
			P256dh:   "key",
			Auth:     "auth",
		}
		if err := store.UpsertPushSubscription(sub); err != nil {
			t.Fatalf("UpsertPushSubscription failed: %v", err)
		}

		// Re-subscribing the same endpoint overwrites.
		sub.Auth = "auth2"
		if err := store.UpsertPushSubscription(sub); err != nil {
			t.Fatal(err)
		}

		subs, err := store.ListPushSubscriptionsForUser(2)
		if err != nil || len(subs) != 1 {
			t.Fatalf("expected 1 subscription, got %d (%v)", len(subs), err)
		}
		if subs[0].Auth != "auth2" {
			t.Errorf("subscription not overwritten: %+v", subs[0])
		}

		none, err := store.ListPushSubscriptionsForUser(3)
		if err != nil || len(none) != 0 {
			t.Errorf("expected no subscriptions for user 3, got %+v", none)
		}
	})

	t.Run("Uploads", func(t *testing.T) {
		up, err := store.InsertUpload(models.Upload{
			Name:       "syllabus.pdf",
			Hash:       "abc123",
			MimeType:   "application/pdf",
			UploadedBy: 1,
		})
		if err != nil {
			t.Fatalf("InsertUpload failed: %v", err)
		}
		if up.ID == 0 || up.UploadedAt == "" {
			t.Errorf("upload not filled in: %+v", up)
		}

		got, err := store.GetUpload(up.ID)
		if err != nil || got.Hash != "abc123" || got.Name != "syllabus.pdf" {
			t.Errorf("GetUpload failed: %v %+v", err, got)
		}

		if _, err := store.GetUpload(999); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
