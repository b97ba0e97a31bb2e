package core

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

// PrivateRoomPrefix starts every private room id.
const PrivateRoomPrefix = store.PrivatePrefix + "mp_"

const privateHashLen = 16

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

// ValidRoomName reports whether name may be used to create a public room.
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// PrivateRoomID derives the private room id of an identity pair. It does not
// depend on argument order.
func PrivateRoomID(idA, idB string) string {
	ids := []string{idA, idB}
	slices.Sort(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return PrivateRoomPrefix + hex.EncodeToString(sum[:])[:privateHashLen]
}

// PublicRoom is a listed room. Membership is not stored here; it is derived
// from the sessions whose current room is Name.
type PublicRoom struct {
	Name         string
	Official     bool
	CreatorID    string
	Moderators   map[string]struct{}
	KickedUntil  map[string]time.Time
	MessageCount int
	CreatedAt    time.Time
	LastActivity time.Time
}

func newPublicRoom(name string, meta store.RoomMeta) *PublicRoom {
	r := &PublicRoom{
		Name:         name,
		Official:     meta.Official,
		CreatorID:    meta.CreatorID,
		Moderators:   make(map[string]struct{}, len(meta.Moderators)),
		KickedUntil:  make(map[string]time.Time),
		MessageCount: meta.MessageCount,
		CreatedAt:    meta.CreatedAt,
		LastActivity: meta.LastActivity,
	}
	for _, id := range meta.Moderators {
		if id != "" {
			r.Moderators[id] = struct{}{}
		}
	}
	return r
}

// Meta converts the room to its persisted form.
func (r *PublicRoom) Meta() store.RoomMeta {
	mods := make([]string, 0, len(r.Moderators))
	for id := range r.Moderators {
		mods = append(mods, id)
	}
	slices.Sort(mods)
	return store.RoomMeta{
		Official:     r.Official,
		CreatorID:    r.CreatorID,
		Moderators:   mods,
		MessageCount: r.MessageCount,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
}

// IsCreator reports whether identity created the room.
func (r *PublicRoom) IsCreator(identity string) bool {
	return identity != "" && r.CreatorID == identity
}

// IsModerator reports whether identity is the creator or a delegated moderator.
func (r *PublicRoom) IsModerator(identity string) bool {
	if identity == "" {
		return false
	}
	if r.IsCreator(identity) {
		return true
	}
	_, ok := r.Moderators[identity]
	return ok
}

// Kick blocks identity from the room until the given time.
func (r *PublicRoom) Kick(identity string, until time.Time) {
	r.KickedUntil[identity] = until
}

// Kicked reports whether identity is still blocked. Expired entries are cleared.
func (r *PublicRoom) Kicked(identity string, now time.Time) bool {
	until, ok := r.KickedUntil[identity]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(r.KickedUntil, identity)
	return false
}

// PrivateRoom is a two-party room addressed by PrivateRoomID.
type PrivateRoom struct {
	ID           string
	Participants [2]string
	Connected    map[string]struct{}
	CreatedAt    time.Time
	LastActivity time.Time
}

// Has reports whether identity is one of the two participants.
func (p *PrivateRoom) Has(identity string) bool {
	return identity != "" && (p.Participants[0] == identity || p.Participants[1] == identity)
}
