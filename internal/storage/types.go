package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func i64Key(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

type DBUser struct {
	ID           int64  `msgpack:"id"`
	Username     string `msgpack:"username"`
	Name         string `msgpack:"name"`
	Email        string `msgpack:"email"`
	Phone        string `msgpack:"phone"`
	Role         string `msgpack:"role"`
	Course       string `msgpack:"course"`
	Module       string `msgpack:"module"`
	Address      string `msgpack:"address"`
	ImageURL     string `msgpack:"imageUrl"`
	CreatedAt    string `msgpack:"createdAt"`
	PasswordHash string `msgpack:"passwordHash"`
}

func (u *DBUser) Key() []byte {
	return i64Key(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBMessage struct {
	ID          int64  `msgpack:"id"`
	SenderID    int64  `msgpack:"senderId"`
	RecipientID *int64 `msgpack:"recipientId"`
	GroupID     *int64 `msgpack:"groupId"`
	Body        string `msgpack:"body"`
	FileURL     string `msgpack:"fileUrl"`
	FileName    string `msgpack:"fileName"`
	Timestamp   string `msgpack:"timestamp"`
}

func (m *DBMessage) Key() []byte {
	return i64Key(m.ID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBGroup struct {
	ID        int64  `msgpack:"id"`
	RoomID    string `msgpack:"roomId"`
	Name      string `msgpack:"name"`
	CreatedBy int64  `msgpack:"createdBy"`
	CreatedAt string `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return i64Key(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

type DBGroupMember struct {
	GroupID  int64  `msgpack:"groupId"`
	UserID   int64  `msgpack:"userId"`
	JoinedAt string `msgpack:"joinedAt"`
}

// Key is groupID|userID so one bucket holds all memberships.
func (m *DBGroupMember) Key() []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(m.GroupID))
	binary.BigEndian.PutUint64(key[8:], uint64(m.UserID))
	return key
}

func (m *DBGroupMember) MarshalBinary() (data []byte, err error) {
	type alias DBGroupMember
	return msgpack.Marshal((*alias)(m))
}

func (m *DBGroupMember) UnmarshalBinary(data []byte) error {
	type alias DBGroupMember
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBNotification struct {
	ID          int64  `msgpack:"id"`
	SenderID    int64  `msgpack:"senderId"`
	RecipientID *int64 `msgpack:"recipientId"`
	Message     string `msgpack:"message"`
	Type        string `msgpack:"type"`
	SentAt      string `msgpack:"sentAt"`
}

func (n *DBNotification) Key() []byte {
	return i64Key(n.ID)
}

func (n *DBNotification) MarshalBinary() (data []byte, err error) {
	type alias DBNotification
	return msgpack.Marshal((*alias)(n))
}

func (n *DBNotification) UnmarshalBinary(data []byte) error {
	type alias DBNotification
	return msgpack.Unmarshal(data, (*alias)(n))
}

type DBAnnouncement struct {
	ID       int64  `msgpack:"id"`
	SenderID int64  `msgpack:"senderId"`
	Message  string `msgpack:"message"`
	SentAt   string `msgpack:"sentAt"`
}

func (a *DBAnnouncement) Key() []byte {
	return i64Key(a.ID)
}

func (a *DBAnnouncement) MarshalBinary() (data []byte, err error) {
	type alias DBAnnouncement
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAnnouncement) UnmarshalBinary(data []byte) error {
	type alias DBAnnouncement
	return msgpack.Unmarshal(data, (*alias)(a))
}

type DBPushSubscription struct {
	UserID   int64  `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

// Key is the endpoint URL: one record per user agent, re-subscribing
// overwrites.
func (p *DBPushSubscription) Key() []byte {
	return []byte(p.Endpoint)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

type DBUpload struct {
	ID         int64  `msgpack:"id"`
	Name       string `msgpack:"name"`
	Hash       string `msgpack:"hash"`
	MimeType   string `msgpack:"mimeType"`
	UploadedBy int64  `msgpack:"uploadedBy"`
	UploadedAt string `msgpack:"uploadedAt"`
}

func (f *DBUpload) Key() []byte {
	return i64Key(f.ID)
}

func (f *DBUpload) MarshalBinary() (data []byte, err error) {
	type alias DBUpload
	return msgpack.Marshal((*alias)(f))
}

func (f *DBUpload) UnmarshalBinary(data []byte) error {
	type alias DBUpload
	return msgpack.Unmarshal(data, (*alias)(f))
}
