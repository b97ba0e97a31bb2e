package core

import (
	"time"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChannelList delivers the public room directory.
	EventChannelList EventKind = iota
	// EventPseudoTaken rejects a registration attempt.
	EventPseudoTaken
	// EventJoinedRoom confirms registration and the starting room.
	EventJoinedRoom
	// EventNotice is a system line shown in a room.
	EventNotice
	// EventRoomUsers lists the occupants of a room.
	EventRoomUsers
	// EventRoomCounts maps public rooms to occupant counts.
	EventRoomCounts
	// EventRoomHistory delivers stored messages for a room.
	EventRoomHistory
	// EventSwitchedRoom tells a session its current room changed.
	EventSwitchedRoom
	// EventRoomCreated confirms a room creation.
	EventRoomCreated
	// EventRoomCreateError rejects a room creation.
	EventRoomCreateError
	// EventMessage delivers a text message, translated for the recipient.
	EventMessage
	// EventAction delivers a /me line.
	EventAction
	// EventCode delivers a /code block.
	EventCode
	// EventUserKicked tells a session it was removed by a moderator or admin.
	EventUserKicked
	// EventForceDisconnect tells a session it was removed by the spam guard.
	EventForceDisconnect
	// EventIdentityUpdate tells a session its pseudo or role changed.
	EventIdentityUpdate
	// EventOpenPrivate hands out a private room id.
	EventOpenPrivate
	// EventRoomDeleted announces a public room removal.
	EventRoomDeleted
	// EventError notifies clients about a protocol-level error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// Slices and maps may be shared between recipients and must not be mutated.
type Event struct {
	Kind   EventKind
	Room   string
	Text   string
	Reason string
	Pseudo string
	Color  string
	With   string
	Admin  bool

	Channels []string
	Users    []Occupant
	Counts   map[string]int
	History  []HistoryEntry
	Message  *Delivery
	Error    *CoreError
}

// Occupant is one row of a room user list.
type Occupant struct {
	Identity  string
	Pseudo    string
	Locale    string
	Color     string
	Admin     bool
	Moderator bool
}

// Delivery is a message addressed to one recipient.
type Delivery struct {
	Record     store.Record
	Translated string
	TargetLang string
	Private    bool
	With       string
}

// HistoryEntry is a stored record, optionally translated for the recipient.
type HistoryEntry struct {
	Record     store.Record
	Translated string
	TargetLang string
}

// ChannelInfo summarizes a public room for operators.
type ChannelInfo struct {
	Name         string
	Official     bool
	CreatorID    string
	Occupants    int
	MessageCount int
	LastActivity time.Time
}
