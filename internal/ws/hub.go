package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campus/internal/models"

	"github.com/c-pro/geche"
)

const (
	// Events queued per session before slow consumers start losing
	// them. Delivery is at-most-once throughout.
	sessionBuffer = 100

	nameCacheTTL = 5 * time.Minute
)

// Store is the persistence surface the hub needs: message writes plus
// group and sender-name lookups.
type Store interface {
	InsertMessage(room string, msg models.Message) (int64, error)
	GetGroup(id int64) (models.Group, error)
	GetUser(id int64) (models.User, error)
}

// Session is one authenticated live connection. Identity is attached
// at registration and never revalidated.
type Session struct {
	UserID int64
	Role   models.Role

	// Display name, provided by the client's join event.
	Name string

	events chan models.ServerEvent
}

// Events is the stream of server events the connection writes to the
// wire.
func (s *Session) Events() <-chan models.ServerEvent {
	return s.events
}

func (s *Session) send(ev models.ServerEvent) {
	select {
	case s.events <- ev:
	default:
		// Drop for slow consumers; history is recoverable over REST.
	}
}

// Hub is the room directory and broadcast dispatcher. Membership is
// in-memory and rebuilt from join events on every connection; the
// database stays the single source of truth.
type Hub struct {
	store Store
	names geche.Geche[int64, string]
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{}
}

func NewHub(ctx context.Context, store Store) *Hub {
	return &Hub{
		store:    store,
		names:    geche.NewMapTTLCache[int64, string](ctx, nameCacheTTL, time.Minute),
		now:      time.Now,
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
	}
}

// Register attaches a freshly authenticated connection.
func (h *Hub) Register(userID int64, role models.Role) *Session {
	sess := &Session{
		UserID: userID,
		Role:   role,
		events: make(chan models.ServerEvent, sessionBuffer),
	}

	h.mu.Lock()
	h.sessions[sess] = struct{}{}
	h.mu.Unlock()

	slog.Info("user connected", "user_id", userID, "role", role)
	return sess
}

// Unregister removes the session from every room it joined and closes
// its event stream.
func (h *Hub) Unregister(sess *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[sess]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sess)
	for room, members := range h.rooms {
		delete(members, sess)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(sess.events)
	h.mu.Unlock()

	slog.Info("user disconnected", "user_id", sess.UserID)
}

// Announce handles the client's initial join event: the session takes
// its display name, enters its personal room, and every connected
// session hears about it.
func (h *Hub) Announce(sess *Session, name string) {
	h.mu.Lock()
	sess.Name = name
	h.joinLocked(sess, PersonalRoom(sess.UserID))
	h.mu.Unlock()

	h.EmitToAll(models.ServerEvent{
		Type:   models.ServerEventUserJoined,
		UserID: sess.UserID,
		Role:   sess.Role,
		Name:   name,
	})
}

// Join adds the session to a room. Joining twice is a no-op.
func (h *Hub) Join(sess *Session, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	h.joinLocked(sess, room)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(sess *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[sess] = struct{}{}
}

// Dispatch handles a sendMessage event: validate, persist, resolve the
// target room, pull absent recipients in, then broadcast. Invalid
// events and persistence failures are logged and dropped; the sender
// gets no error back.
func (h *Hub) Dispatch(sess *Session, ev models.ClientEvent) {
	if ev.SenderID == 0 || (ev.Message == "" && ev.FileURL == "") || ev.Timestamp == "" ||
		(ev.RecipientID == nil && ev.GroupID == nil) {
		slog.Warn("dropping invalid message event", "user_id", sess.UserID)
		return
	}

	timestamp, ok := models.NormalizeTimestamp(ev.Timestamp, h.now)
	if !ok {
		slog.Warn("unparseable timestamp, substituting server time",
			"user_id", sess.UserID, "timestamp", ev.Timestamp)
	}

	msg := models.Message{
		SenderID:  ev.SenderID,
		Body:      ev.Message,
		FileURL:   ev.FileURL,
		FileName:  ev.FileName,
		Timestamp: timestamp,
	}

	// Group addressing wins if a client sends both.
	var room string
	if ev.GroupID != nil {
		group, err := h.store.GetGroup(*ev.GroupID)
		if err != nil {
			slog.Error("group lookup failed, dropping message",
				"group_id", *ev.GroupID, "error", err)
			return
		}
		room = group.RoomID
		msg.GroupID = ev.GroupID
	} else {
		room = DirectRoom(ev.SenderID, *ev.RecipientID)
		msg.RecipientID = ev.RecipientID
	}

	id, err := h.store.InsertMessage(room, msg)
	if err != nil {
		slog.Error("message not persisted, delivery aborted", "room", room, "error", err)
		return
	}
	msg.ID = id

	senderName := h.senderName(ev.SenderID)

	h.mu.Lock()
	h.joinLocked(sess, room)
	h.mu.Unlock()

	// Ask absent recipients to subscribe before the broadcast goes
	// out. For groups the instruction is idempotent for members
	// already in the room.
	if ev.GroupID != nil {
		h.EmitToRoom(room, models.ServerEvent{Type: models.ServerEventJoinRoom, Room: room})
	} else {
		h.EmitToRoom(PersonalRoom(*ev.RecipientID),
			models.ServerEvent{Type: models.ServerEventJoinRoom, Room: room})
	}

	h.EmitToRoom(room, models.ServerEvent{
		Type:       models.ServerEventReceiveMessage,
		Message:    &msg,
		SenderName: senderName,
	})
}

// senderName resolves a user's display name through a read-through
// TTL cache.
func (h *Hub) senderName(userID int64) string {
	if name, err := h.names.Get(userID); err == nil {
		return name
	}
	user, err := h.store.GetUser(userID)
	if err != nil {
		return "Unknown"
	}
	h.names.Set(userID, user.Name)
	return user.Name
}

// EmitToRoom delivers an event to every session currently in the room.
func (h *Hub) EmitToRoom(room string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sess := range h.rooms[room] {
		sess.send(ev)
	}
}

// EmitToAll delivers an event to every connected session.
func (h *Hub) EmitToAll(ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sess := range h.sessions {
		sess.send(ev)
	}
}

// EmitToUser delivers an event to the user's personal room.
func (h *Hub) EmitToUser(userID int64, ev models.ServerEvent) {
	h.EmitToRoom(PersonalRoom(userID), ev)
}
