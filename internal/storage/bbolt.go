package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"campus/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketUsernames     = []byte("usernames")
	bucketMessages      = []byte("messages")
	bucketGroups        = []byte("groups")
	bucketGroupRooms    = []byte("group_rooms")
	bucketGroupMembers  = []byte("group_members")
	bucketNotifications = []byte("notifications")
	bucketAnnouncements = []byte("announcements")
	bucketPushSubs      = []byte("push_subscriptions")
	bucketUploads       = []byte("uploads")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers, bucketUsernames, bucketMessages,
			bucketGroups, bucketGroupRooms, bucketGroupMembers,
			bucketNotifications, bucketAnnouncements,
			bucketPushSubs, bucketUploads,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user with its password hash. Usernames are
// unique; the generated id and creation timestamp are filled in.
func (s *BboltStorage) CreateUser(user models.User, passwordHash string) (models.User, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketUsernames)
		if names.Get([]byte(user.Username)) != nil {
			return fmt.Errorf("username %q: %w", user.Username, models.ErrExists)
		}

		b := tx.Bucket(bucketUsers)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		user.ID = int64(seq)
		user.CreatedAt = models.FormatDateTime(s.now())

		dbUser := &DBUser{
			ID:           user.ID,
			Username:     user.Username,
			Name:         user.Name,
			Email:        user.Email,
			Phone:        user.Phone,
			Role:         string(user.Role),
			Course:       user.Course,
			Module:       user.Module,
			Address:      user.Address,
			ImageURL:     user.ImageURL,
			CreatedAt:    user.CreatedAt,
			PasswordHash: passwordHash,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		if err := b.Put(dbUser.Key(), data); err != nil {
			return err
		}
		return names.Put([]byte(user.Username), dbUser.Key())
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func userFromDB(u DBUser) models.User {
	return models.User{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      models.Role(u.Role),
		Course:    u.Course,
		Module:    u.Module,
		Address:   u.Address,
		ImageURL:  u.ImageURL,
		CreatedAt: u.CreatedAt,
	}
}

func (s *BboltStorage) GetUser(id int64) (models.User, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(i64Key(id))
		if data == nil {
			return models.ErrNotFound
		}
		return dbUser.UnmarshalBinary(data)
	})
	if err != nil {
		return models.User{}, err
	}
	return userFromDB(dbUser), nil
}

// GetUserByUsername returns the user together with its password hash.
func (s *BboltStorage) GetUserByUsername(username string) (models.User, string, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketUsernames).Get([]byte(username))
		if key == nil {
			return models.ErrNotFound
		}
		data := tx.Bucket(bucketUsers).Get(key)
		if data == nil {
			return models.ErrNotFound
		}
		return dbUser.UnmarshalBinary(data)
	})
	if err != nil {
		return models.User{}, "", err
	}
	return userFromDB(dbUser), dbUser.PasswordHash, nil
}

func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, userFromDB(dbUser))
			return nil
		})
	})
	return users, err
}

// ListUsersByRole returns users whose role is any of the given roles.
func (s *BboltStorage) ListUsersByRole(roles ...models.Role) ([]models.User, error) {
	all, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	var filtered []models.User
	for _, u := range all {
		for _, r := range roles {
			if u.Role == r {
				filtered = append(filtered, u)
				break
			}
		}
	}
	return filtered, nil
}

// InsertMessage persists a chat message under its room and returns the
// generated message id. Ids are unique across all rooms.
func (s *BboltStorage) InsertMessage(room string, msg models.Message) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		main := tx.Bucket(bucketMessages)
		seq, err := main.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)

		roomBucket, err := main.CreateBucketIfNotExists([]byte(room))
		if err != nil {
			return fmt.Errorf("failed to create room bucket: %w", err)
		}

		dbMsg := DBMessage{
			ID:          id,
			SenderID:    msg.SenderID,
			RecipientID: msg.RecipientID,
			GroupID:     msg.GroupID,
			Body:        msg.Body,
			FileURL:     msg.FileURL,
			FileName:    msg.FileName,
			Timestamp:   msg.Timestamp,
		}
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return roomBucket.Put(dbMsg.Key(), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListMessages returns all messages of a room in insertion order.
func (s *BboltStorage) ListMessages(room string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(room))
		if roomBucket == nil {
			return nil // No messages for this room
		}
		return roomBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:          dbMsg.ID,
				SenderID:    dbMsg.SenderID,
				RecipientID: dbMsg.RecipientID,
				GroupID:     dbMsg.GroupID,
				Body:        dbMsg.Body,
				FileURL:     dbMsg.FileURL,
				FileName:    dbMsg.FileName,
				Timestamp:   dbMsg.Timestamp,
			})
			return nil
		})
	})
	return messages, err
}

// CreateGroup stores a group and its membership list in one
// transaction. The creator is always a member.
func (s *BboltStorage) CreateGroup(group models.Group, memberIDs []int64) (models.Group, error) {
	members := make([]int64, 0, len(memberIDs)+1)
	seen := map[int64]bool{}
	for _, id := range append([]int64{group.CreatedBy}, memberIDs...) {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		groups := tx.Bucket(bucketGroups)
		seq, err := groups.NextSequence()
		if err != nil {
			return err
		}
		group.ID = int64(seq)
		group.CreatedAt = models.FormatDateTime(s.now())

		dbGroup := &DBGroup{
			ID:        group.ID,
			RoomID:    group.RoomID,
			Name:      group.Name,
			CreatedBy: group.CreatedBy,
			CreatedAt: group.CreatedAt,
		}
		data, err := dbGroup.MarshalBinary()
		if err != nil {
			return err
		}
		if err := groups.Put(dbGroup.Key(), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketGroupRooms).Put([]byte(group.RoomID), dbGroup.Key()); err != nil {
			return err
		}

		memberBucket := tx.Bucket(bucketGroupMembers)
		for _, userID := range members {
			m := &DBGroupMember{
				GroupID:  group.ID,
				UserID:   userID,
				JoinedAt: group.CreatedAt,
			}
			data, err := m.MarshalBinary()
			if err != nil {
				return err
			}
			if err := memberBucket.Put(m.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Group{}, err
	}
	return group, nil
}

func groupFromDB(g DBGroup) models.Group {
	return models.Group{
		ID:        g.ID,
		RoomID:    g.RoomID,
		Name:      g.Name,
		CreatedBy: g.CreatedBy,
		CreatedAt: g.CreatedAt,
	}
}

func (s *BboltStorage) GetGroup(id int64) (models.Group, error) {
	var dbGroup DBGroup
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get(i64Key(id))
		if data == nil {
			return models.ErrNotFound
		}
		return dbGroup.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Group{}, err
	}
	return groupFromDB(dbGroup), nil
}

func (s *BboltStorage) GetGroupByRoom(roomID string) (models.Group, error) {
	var dbGroup DBGroup
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketGroupRooms).Get([]byte(roomID))
		if key == nil {
			return models.ErrNotFound
		}
		data := tx.Bucket(bucketGroups).Get(key)
		if data == nil {
			return models.ErrNotFound
		}
		return dbGroup.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Group{}, err
	}
	return groupFromDB(dbGroup), nil
}

// ListGroupsForUser returns every group the user is a member of.
func (s *BboltStorage) ListGroupsForUser(userID int64) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		groupBucket := tx.Bucket(bucketGroups)
		return tx.Bucket(bucketGroupMembers).ForEach(func(k, v []byte) error {
			if len(k) != 16 || int64(binary.BigEndian.Uint64(k[8:])) != userID {
				return nil
			}
			data := groupBucket.Get(k[:8])
			if data == nil {
				return fmt.Errorf("membership without group %d", binary.BigEndian.Uint64(k[:8]))
			}
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(data); err != nil {
				return err
			}
			groups = append(groups, groupFromDB(dbGroup))
			return nil
		})
	})
	return groups, err
}

func (s *BboltStorage) ListGroupMembers(groupID int64) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketGroupMembers).Cursor()
		prefix := i64Key(groupID)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var m DBGroupMember
			if err := m.UnmarshalBinary(v); err != nil {
				return err
			}
			members = append(members, models.GroupMember{
				GroupID:  m.GroupID,
				UserID:   m.UserID,
				JoinedAt: m.JoinedAt,
			})
		}
		return nil
	})
	return members, err
}

func (s *BboltStorage) InsertNotification(n models.Notification) (models.Notification, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		n.ID = int64(seq)

		dbNotif := &DBNotification{
			ID:          n.ID,
			SenderID:    n.SenderID,
			RecipientID: n.RecipientID,
			Message:     n.Message,
			Type:        n.Type,
			SentAt:      n.SentAt,
		}
		data, err := dbNotif.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbNotif.Key(), data)
	})
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

func notificationFromDB(n DBNotification) models.Notification {
	return models.Notification{
		ID:          n.ID,
		SenderID:    n.SenderID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		Type:        n.Type,
		SentAt:      n.SentAt,
	}
}

// ListNotifications returns every stored notification (admin view).
func (s *BboltStorage) ListNotifications() ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
			var dbNotif DBNotification
			if err := dbNotif.UnmarshalBinary(v); err != nil {
				return err
			}
			notifications = append(notifications, notificationFromDB(dbNotif))
			return nil
		})
	})
	return notifications, err
}

// ListNotificationsForUser returns notifications addressed to the user
// plus broadcasts.
func (s *BboltStorage) ListNotificationsForUser(userID int64) ([]models.Notification, error) {
	all, err := s.ListNotifications()
	if err != nil {
		return nil, err
	}
	var visible []models.Notification
	for _, n := range all {
		if n.RecipientID == nil || *n.RecipientID == userID {
			visible = append(visible, n)
		}
	}
	return visible, nil
}

func (s *BboltStorage) InsertAnnouncement(a models.Announcement) (models.Announcement, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAnnouncements)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		a.ID = int64(seq)

		dbAnn := &DBAnnouncement{
			ID:       a.ID,
			SenderID: a.SenderID,
			Message:  a.Message,
			SentAt:   a.SentAt,
		}
		data, err := dbAnn.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbAnn.Key(), data)
	})
	if err != nil {
		return models.Announcement{}, err
	}
	return a, nil
}

func (s *BboltStorage) ListAnnouncements() ([]models.Announcement, error) {
	var announcements []models.Announcement
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAnnouncements).ForEach(func(k, v []byte) error {
			var dbAnn DBAnnouncement
			if err := dbAnn.UnmarshalBinary(v); err != nil {
				return err
			}
			announcements = append(announcements, models.Announcement{
				ID:       dbAnn.ID,
				SenderID: dbAnn.SenderID,
				Message:  dbAnn.Message,
				SentAt:   dbAnn.SentAt,
			})
			return nil
		})
	})
	return announcements, err
}

func (s *BboltStorage) UpsertPushSubscription(sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSub := &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPushSubs).Put(dbSub.Key(), data)
	})
}

func (s *BboltStorage) ListPushSubscriptions() ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPushSubs).ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:   dbSub.UserID,
				Endpoint: dbSub.Endpoint,
				P256dh:   dbSub.P256dh,
				Auth:     dbSub.Auth,
			})
			return nil
		})
	})
	return subs, err
}

func (s *BboltStorage) ListPushSubscriptionsForUser(userID int64) ([]models.PushSubscription, error) {
	all, err := s.ListPushSubscriptions()
	if err != nil {
		return nil, err
	}
	var subs []models.PushSubscription
	for _, sub := range all {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *BboltStorage) InsertUpload(u models.Upload) (models.Upload, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUploads)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		u.ID = int64(seq)
		u.UploadedAt = models.FormatDateTime(s.now())

		dbUpload := &DBUpload{
			ID:         u.ID,
			Name:       u.Name,
			Hash:       u.Hash,
			MimeType:   u.MimeType,
			UploadedBy: u.UploadedBy,
			UploadedAt: u.UploadedAt,
		}
		data, err := dbUpload.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUpload.Key(), data)
	})
	if err != nil {
		return models.Upload{}, err
	}
	return u, nil
}

func (s *BboltStorage) GetUpload(id int64) (models.Upload, error) {
	var dbUpload DBUpload
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUploads).Get(i64Key(id))
		if data == nil {
			return models.ErrNotFound
		}
		return dbUpload.UnmarshalBinary(data)
	})
	if err != nil {
		return models.Upload{}, err
	}
	return models.Upload{
		ID:         dbUpload.ID,
		Name:       dbUpload.Name,
		Hash:       dbUpload.Hash,
		MimeType:   dbUpload.MimeType,
		UploadedBy: dbUpload.UploadedBy,
		UploadedAt: dbUpload.UploadedAt,
	}, nil
}
