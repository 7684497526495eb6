package ws

import (
	"strconv"

	"github.com/google/uuid"
)

// GroupRoomPrefix marks server-generated group channel names.
const GroupRoomPrefix = "group_"

// PersonalRoom is the channel a user can always be reached on,
// regardless of which conversation rooms they have joined.
func PersonalRoom(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// DirectRoom returns the shared channel name for a two-user
// conversation. It is a pure function of the pair: both argument
// orders produce the same name.
func DirectRoom(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + "-" + strconv.FormatInt(b, 10)
}

// NewGroupRoom generates an opaque channel name for a new group.
func NewGroupRoom() string {
	return GroupRoomPrefix + uuid.NewString()
}
