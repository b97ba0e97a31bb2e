package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound  = "room_not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeNotRegistered = "not_registered"
	ErrCodeOfficialRoom  = "official_room"
)

var (
	// ErrInvalidRoomName is returned for names outside the allowed slug.
	ErrInvalidRoomName = errors.New("invalid room name")
	// ErrAlreadyCreated is returned when the creator still owns a room.
	ErrAlreadyCreated = errors.New("creator already owns a room")
	// ErrRoomExists is returned alongside the existing room for duplicate names.
	ErrRoomExists = errors.New("room already exists")
	// ErrPrivateUnavailable is returned when a participant has no stable identity.
	ErrPrivateUnavailable = errors.New("private messaging unavailable")
	// ErrRoomNotFound is returned for unknown public rooms.
	ErrRoomNotFound = errors.New("room not found")
	// ErrOfficialRoom is returned when deleting an official room.
	ErrOfficialRoom = errors.New("official rooms cannot be deleted")
	// ErrHubStopped is returned by queries issued after Run returned.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
