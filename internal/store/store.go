package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PrivatePrefix marks room names that live in the private namespace.
const PrivatePrefix = "@"

var (
	// ErrNoCipher is returned when a private room is written without a configured cipher.
	ErrNoCipher = errors.New("store: private persistence requires a cipher")
	// ErrBadRoomName is returned for names that cannot be mapped to a file safely.
	ErrBadRoomName = errors.New("store: bad room name")
)

// IsPrivate reports whether room belongs to the private namespace.
func IsPrivate(room string) bool {
	return strings.HasPrefix(room, PrivatePrefix)
}

// RoomMeta is the persisted metadata of a public room.
type RoomMeta struct {
	Official     bool      `json:"official"`
	CreatorID    string    `json:"creator_id,omitempty"`
	Moderators   []string  `json:"mods,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Cipher seals payloads of private room records.
type Cipher interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// HistoryStore persists bounded per-room message history.
type HistoryStore interface {
	// Append adds rec to the room history, trimming the oldest records beyond the cap.
	Append(ctx context.Context, room string, rec Record) error
	// History returns at most limit records, oldest first. limit <= 0 means all.
	History(ctx context.Context, room string, limit int) ([]Record, error)
	// Remove deletes the room history. Missing history is not an error.
	Remove(ctx context.Context, room string) error
	// PublicRooms lists public rooms that have a history file.
	PublicRooms(ctx context.Context) ([]string, error)
}

// DirectoryStore persists the public room directory.
type DirectoryStore interface {
	LoadDirectory(ctx context.Context) (map[string]RoomMeta, error)
	SaveDirectory(ctx context.Context, dir map[string]RoomMeta) error
}

// Store aggregates persistence used by the chat engine.
type Store interface {
	HistoryStore
	DirectoryStore
}

// TranslationCache is a persistent translation memo.
type TranslationCache interface {
	GetTranslation(ctx context.Context, key string) (string, bool, error)
	PutTranslation(ctx context.Context, key, translated string) error
	Close() error
}
