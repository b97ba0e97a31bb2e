package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRegister       = "register"
	InboundTypeJoin           = "join"
	InboundTypeCreateRoom     = "create_room"
	InboundTypeSendMessage    = "send_message"
	InboundTypeOpenPrivate    = "open_private"
	InboundTypeSwitchPrivate  = "switch_private"
	InboundTypePrivateMessage = "private_message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventChannelList     = "channel_list"
	EventPseudoTaken     = "pseudo_taken"
	EventJoinedRoom      = "joined_room"
	EventSystemMessage   = "system_message"
	EventRoomUsers       = "room_users"
	EventRoomCounts      = "room_counts"
	EventRoomHistory     = "room_history"
	EventSwitchedRoom    = "switched_room"
	EventRoomCreated     = "room_created"
	EventRoomCreateError = "room_create_error"
	EventReceiveMessage  = "receive_message"
	EventActionMessage   = "action_message"
	EventCodeMessage     = "code_message"
	EventUserKicked      = "user_kicked"
	EventForceDisconnect = "force_disconnect"
	EventIdentityUpdate  = "identity_update"
	EventOpenPrivateRoom = "open_private_room"
	EventRoomDeleted     = "room_deleted"
)

// RegisterData creates a session for the connection.
type RegisterData struct {
	Pseudo       string `json:"pseudo"`
	Lang         string `json:"lang,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

// JoinData requests to join a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// CreateRoomData requests a new public room.
type CreateRoomData struct {
	Name string `json:"name"`
}

// SendMessageData is a chat line or slash command for the current room.
type SendMessageData struct {
	Msg string `json:"msg"`
}

// OpenPrivateData asks for the private room shared with a pseudo.
type OpenPrivateData struct {
	With string `json:"with"`
}

// SwitchPrivateData moves the session into a private room.
type SwitchPrivateData struct {
	Room string `json:"room"`
}

// PrivateMessageData is a direct message to a pseudo.
type PrivateMessageData struct {
	To  string `json:"to"`
	Msg string `json:"msg"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ChannelList is the public room directory.
type ChannelList struct {
	Channels []string `json:"channels"`
}

// Text carries a single human-readable line.
type Text struct {
	Room string `json:"room,omitempty"`
	Msg  string `json:"msg"`
}

// JoinedRoom confirms registration.
type JoinedRoom struct {
	Room    string `json:"room"`
	Pseudo  string `json:"pseudo"`
	Color   string `json:"color"`
	IsAdmin bool   `json:"is_admin"`
}

// RoomRef names a room.
type RoomRef struct {
	Room string `json:"room"`
}

// User is one row of a room user list.
type User struct {
	Pseudo  string `json:"pseudo"`
	Lang    string `json:"lang"`
	Color   string `json:"color"`
	UserID  string `json:"user_id,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	IsMod   bool   `json:"is_mod"`
}

// RoomUsers lists the occupants of a room.
type RoomUsers struct {
	Room  string `json:"room"`
	Users []User `json:"users"`
}

// RoomCounts maps public rooms to occupant counts.
type RoomCounts struct {
	Counts map[string]int `json:"counts"`
}

// Message is a delivered or stored chat record. Fields depend on Type.
type Message struct {
	Type       string  `json:"type"`
	Room       string  `json:"room,omitempty"`
	Pseudo     string  `json:"pseudo"`
	Color      string  `json:"color,omitempty"`
	Original   string  `json:"original,omitempty"`
	Translated string  `json:"translated,omitempty"`
	SourceLang string  `json:"source_lang,omitempty"`
	TargetLang string  `json:"target_lang,omitempty"`
	Lang       string  `json:"lang,omitempty"`
	Content    string  `json:"content,omitempty"`
	Timestamp  float64 `json:"timestamp"`
	Private    bool    `json:"private,omitempty"`
	With       string  `json:"with,omitempty"`
}

// RoomHistory delivers stored messages for a room.
type RoomHistory struct {
	Room    string    `json:"room"`
	History []Message `json:"history"`
}

// Removal tells a session it was removed from a room or the server.
type Removal struct {
	Room   string `json:"room,omitempty"`
	Reason string `json:"reason"`
}

// IdentityUpdate tells a session its pseudo or role changed.
type IdentityUpdate struct {
	Pseudo  string `json:"pseudo"`
	Color   string `json:"color"`
	IsAdmin bool   `json:"is_admin"`
}

// OpenPrivateRoom hands out a private room id.
type OpenPrivateRoom struct {
	Room string `json:"room"`
	With string `json:"with"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
