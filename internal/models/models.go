package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
)

// User represents a registered campus user (admin, student or lecturer).
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `json:"role"`
	Course    string `json:"course,omitempty"`
	Module    string `json:"module,omitempty"`
	Address   string `json:"address,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Message is a persisted chat message. Exactly one of RecipientID and
// GroupID is set: a direct message carries the recipient, a group
// message carries the group.
type Message struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"senderId"`
	RecipientID *int64 `json:"recipientId,omitempty"`
	GroupID     *int64 `json:"groupId,omitempty"`
	Body        string `json:"message"`
	FileURL     string `json:"fileUrl,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Group is a persisted chat group. RoomID is the opaque broadcast
// channel name generated at creation time; groups are never mutated
// after creation.
type Group struct {
	ID        int64  `json:"groupId"`
	RoomID    string `json:"roomId"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

type GroupMember struct {
	GroupID  int64  `json:"groupId"`
	UserID   int64  `json:"userId"`
	JoinedAt string `json:"joined_at"`
}

// Notification is an administrative message. RecipientID nil means
// broadcast to every student and lecturer.
type Notification struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"senderId"`
	RecipientID *int64 `json:"recipientId,omitempty"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	SentAt      string `json:"sent_at"`
	SenderName  string `json:"sender_name,omitempty"`
}

// Announcement is always broadcast; there is no recipient concept.
type Announcement struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	Message    string `json:"message"`
	SentAt     string `json:"sent_at"`
	SenderName string `json:"sender_name,omitempty"`
}

// PushSubscription is a stored web push endpoint for one user agent.
type PushSubscription struct {
	UserID   int64  `json:"userId"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Upload is a stored file record. The public URL is derived from the
// record id at the API layer.
type Upload struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Hash       string `json:"-"`
	MimeType   string `json:"mimeType"`
	UploadedBy int64  `json:"uploaded_by"`
	UploadedAt string `json:"uploaded_at"`
}

// ClientEvent is an event sent from the client over the socket.
type ClientEvent struct {
	Type        ClientEventType `json:"type"`
	Name        string          `json:"name,omitempty"`
	Room        string          `json:"room,omitempty"`
	SenderID    int64           `json:"senderId,omitempty"`
	RecipientID *int64          `json:"recipientId,omitempty"`
	GroupID     *int64          `json:"groupId,omitempty"`
	Message     string          `json:"message,omitempty"`
	FileURL     string          `json:"fileUrl,omitempty"`
	FileName    string          `json:"fileName,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// ServerEvent is an event pushed to the client over the socket.
type ServerEvent struct {
	Type         ServerEventType `json:"type"`
	Room         string          `json:"room,omitempty"`
	UserID       int64           `json:"userId,omitempty"`
	Role         Role            `json:"role,omitempty"`
	Name         string          `json:"name,omitempty"`
	SenderName   string          `json:"senderName,omitempty"`
	Message      *Message        `json:"message,omitempty"`
	Notification *Notification   `json:"notification,omitempty"`
	Announcement *Announcement   `json:"announcement,omitempty"`
}

type ClientEventType string

const (
	ClientEventJoin        ClientEventType = "join"
	ClientEventJoinRoom    ClientEventType = "joinRoom"
	ClientEventSendMessage ClientEventType = "sendMessage"
)

type ServerEventType string

const (
	ServerEventUserJoined          ServerEventType = "userJoined"
	ServerEventJoinRoom            ServerEventType = "joinRoom"
	ServerEventReceiveMessage      ServerEventType = "receiveMessage"
	ServerEventReceiveNotification ServerEventType = "receiveNotification"
	ServerEventReceiveAnnouncement ServerEventType = "receiveAnnouncement"
)
