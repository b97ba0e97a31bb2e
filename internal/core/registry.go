package core

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

// Ban is an entry of the server-wide ban list. A zero Until is permanent.
type Ban struct {
	Identity string
	Pseudo   string
	Until    time.Time
}

// Permanent reports whether the ban never expires.
func (b Ban) Permanent() bool {
	return b.Until.IsZero()
}

// Active reports whether the ban still applies at now.
func (b Ban) Active(now time.Time) bool {
	return b.Permanent() || now.Before(b.Until)
}

// Registry holds the authoritative in-memory state. It is owned by the hub
// goroutine and is not safe for concurrent use.
type Registry struct {
	sessions    map[string]*Session
	rooms       map[string]*PublicRoom
	private     map[string]*PrivateRoom
	bans        map[string]Ban
	admins      map[string]struct{}
	officials   []string
	defaultRoom string
}

// NewRegistry seeds the official rooms. The default room is always official.
func NewRegistry(officials []string, defaultRoom string, now time.Time) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		rooms:       make(map[string]*PublicRoom),
		private:     make(map[string]*PrivateRoom),
		bans:        make(map[string]Ban),
		admins:      make(map[string]struct{}),
		defaultRoom: defaultRoom,
	}
	for _, name := range officials {
		if name != "" && !store.IsPrivate(name) && !slices.Contains(r.officials, name) {
			r.officials = append(r.officials, name)
		}
	}
	if !slices.Contains(r.officials, defaultRoom) {
		r.officials = append([]string{defaultRoom}, r.officials...)
	}
	r.seedOfficials(now)
	return r
}

func (r *Registry) seedOfficials(now time.Time) {
	for _, name := range r.officials {
		room, ok := r.rooms[name]
		if !ok {
			room = newPublicRoom(name, store.RoomMeta{CreatedAt: now, LastActivity: now})
			r.rooms[name] = room
		}
		room.Official = true
	}
}

// DefaultRoom is where sessions start and where evicted occupants land.
func (r *Registry) DefaultRoom() string {
	return r.defaultRoom
}

// Restore loads persisted metadata. Public history files without an entry are
// registered as rooms; history files are authoritative for room existence.
func (r *Registry) Restore(dir map[string]store.RoomMeta, historyRooms []string, now time.Time) (recovered int) {
	for name, meta := range dir {
		if name == "" || store.IsPrivate(name) {
			continue
		}
		room := newPublicRoom(name, meta)
		if room.CreatedAt.IsZero() {
			room.CreatedAt = now
		}
		if room.LastActivity.IsZero() {
			room.LastActivity = now
		}
		room.Official = slices.Contains(r.officials, name)
		r.rooms[name] = room
	}
	for _, name := range historyRooms {
		if name == "" || store.IsPrivate(name) {
			continue
		}
		if _, ok := r.rooms[name]; ok {
			continue
		}
		r.rooms[name] = newPublicRoom(name, store.RoomMeta{CreatedAt: now, LastActivity: now})
		recovered++
	}
	r.seedOfficials(now)
	return recovered
}

// Directory snapshots public room metadata for persistence.
func (r *Registry) Directory() map[string]store.RoomMeta {
	out := make(map[string]store.RoomMeta, len(r.rooms))
	for name, room := range r.rooms {
		out[name] = room.Meta()
	}
	return out
}

// Sessions

// AddSession registers s. The caller has already checked the pseudo.
func (r *Registry) AddSession(s *Session) {
	r.sessions[s.ConnID] = s
}

// RemoveSession drops the session bound to connID.
func (r *Registry) RemoveSession(connID string) (*Session, bool) {
	s, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
		delete(r.admins, connID)
	}
	return s, ok
}

// Session returns the session bound to connID.
func (r *Registry) Session(connID string) (*Session, bool) {
	s, ok := r.sessions[connID]
	return s, ok
}

// SessionByPseudo finds a session by pseudo, case-insensitively.
func (r *Registry) SessionByPseudo(pseudo string) (*Session, bool) {
	if pseudo == "" {
		return nil, false
	}
	for _, s := range r.sessions {
		if strings.EqualFold(s.Pseudo, pseudo) {
			return s, true
		}
	}
	return nil, false
}

// PseudoInUse reports whether an active session holds pseudo, case-insensitively.
func (r *Registry) PseudoInUse(pseudo string) bool {
	_, ok := r.SessionByPseudo(pseudo)
	return ok
}

// SessionsOf returns every session keyed to identity.
func (r *Registry) SessionsOf(key string) []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.Key() == key {
			out = append(out, s)
		}
	}
	return out
}

// IdentityConnected reports whether any session carries identity.
func (r *Registry) IdentityConnected(identity string) bool {
	if identity == "" {
		return false
	}
	for _, s := range r.sessions {
		if s.Identity == identity {
			return true
		}
	}
	return false
}

// Occupants returns the sessions currently in room, ordered by pseudo.
func (r *Registry) Occupants(room string) []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.Room == room {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Pseudo) < strings.ToLower(out[j].Pseudo)
	})
	return out
}

// Counts maps each occupied public room to its number of sessions. Private
// rooms are left out so their ids are never broadcast.
func (r *Registry) Counts() map[string]int {
	counts := make(map[string]int)
	for _, s := range r.sessions {
		if s.Room != "" && !store.IsPrivate(s.Room) {
			counts[s.Room]++
		}
	}
	return counts
}

// Public rooms

// Room returns a public room by name.
func (r *Registry) Room(name string) (*PublicRoom, bool) {
	room, ok := r.rooms[name]
	return room, ok
}

// Channels lists public rooms: officials in configured order, then the rest sorted.
func (r *Registry) Channels() []string {
	out := make([]string, 0, len(r.rooms))
	out = append(out, r.officials...)
	var extra []string
	for name, room := range r.rooms {
		if !room.Official {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// CreatePublicRoom validates and creates a room named after name, lowercased.
// A creator may own a single room at a time. For a duplicate name the existing
// room is returned with ErrRoomExists and nothing changes.
func (r *Registry) CreatePublicRoom(name, creator string, now time.Time) (*PublicRoom, error) {
	if !ValidRoomName(name) {
		return nil, ErrInvalidRoomName
	}
	name = strings.ToLower(name)

	if creator != "" {
		for _, room := range r.rooms {
			if room.IsCreator(creator) {
				return nil, ErrAlreadyCreated
			}
		}
	}
	if existing, ok := r.rooms[name]; ok {
		return existing, ErrRoomExists
	}

	room := newPublicRoom(name, store.RoomMeta{
		CreatorID:    creator,
		CreatedAt:    now,
		LastActivity: now,
	})
	r.rooms[name] = room
	return room, nil
}

// DeleteRoom removes a non-official public room. Occupants are not moved.
func (r *Registry) DeleteRoom(name string) error {
	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Official {
		return ErrOfficialRoom
	}
	delete(r.rooms, name)
	return nil
}

// Touch records activity on a room. message also bumps the message counter.
func (r *Registry) Touch(name string, now time.Time, message bool) {
	if room, ok := r.rooms[name]; ok {
		room.LastActivity = now
		if message {
			room.MessageCount++
		}
		return
	}
	if p, ok := r.private[name]; ok {
		p.LastActivity = now
	}
}

// SweepIdle deletes empty, non-official public rooms idle longer than ttl.
func (r *Registry) SweepIdle(now time.Time, ttl time.Duration) []string {
	occupied := r.Counts()
	var deleted []string
	for name, room := range r.rooms {
		if room.Official || occupied[name] > 0 {
			continue
		}
		if now.Sub(room.LastActivity) > ttl {
			delete(r.rooms, name)
			deleted = append(deleted, name)
		}
	}
	slices.Sort(deleted)
	return deleted
}

// Private rooms

// GetOrCreatePrivateRoom returns the private room id of an identity pair.
func (r *Registry) GetOrCreatePrivateRoom(idA, idB string, now time.Time) (string, error) {
	if idA == "" || idB == "" {
		return "", ErrPrivateUnavailable
	}
	id := PrivateRoomID(idA, idB)
	if _, ok := r.private[id]; !ok {
		r.private[id] = &PrivateRoom{
			ID:           id,
			Participants: [2]string{idA, idB},
			Connected:    make(map[string]struct{}, 2),
			CreatedAt:    now,
			LastActivity: now,
		}
	}
	return id, nil
}

// PrivateRoom returns a private room by id.
func (r *Registry) PrivateRoom(id string) (*PrivateRoom, bool) {
	p, ok := r.private[id]
	return p, ok
}

// MarkPrivateConnected records identity as present in the private room.
func (r *Registry) MarkPrivateConnected(id, identity string, now time.Time) {
	p, ok := r.private[id]
	if !ok || !p.Has(identity) {
		return
	}
	p.Connected[identity] = struct{}{}
	p.LastActivity = now
}

// SyncPrivateRooms recomputes every connected set from live sessions and
// deletes the rooms left with none. It returns the deleted ids.
func (r *Registry) SyncPrivateRooms() []string {
	var reaped []string
	for id, p := range r.private {
		for _, identity := range p.Participants {
			if r.IdentityConnected(identity) {
				p.Connected[identity] = struct{}{}
			} else {
				delete(p.Connected, identity)
			}
		}
		if len(p.Connected) == 0 {
			delete(r.private, id)
			reaped = append(reaped, id)
		}
	}
	slices.Sort(reaped)
	return reaped
}

// Bans

// Ban records b, replacing any previous entry for the identity.
func (r *Registry) Ban(b Ban) {
	r.bans[b.Identity] = b
}

// Banned returns the active ban of identity. Expired entries are cleared.
func (r *Registry) Banned(identity string, now time.Time) (Ban, bool) {
	b, ok := r.bans[identity]
	if !ok {
		return Ban{}, false
	}
	if !b.Active(now) {
		delete(r.bans, identity)
		return Ban{}, false
	}
	return b, true
}

// Unban removes bans matching query: an identity, a pseudo recorded at ban
// time, or the pseudo of a connected session.
func (r *Registry) Unban(query string) []Ban {
	if query == "" {
		return nil
	}
	keys := map[string]struct{}{query: {}}
	if s, ok := r.SessionByPseudo(query); ok {
		keys[s.Key()] = struct{}{}
	}

	var removed []Ban
	for id, b := range r.bans {
		_, byKey := keys[id]
		if byKey || strings.EqualFold(b.Pseudo, query) {
			delete(r.bans, id)
			removed = append(removed, b)
		}
	}
	return removed
}

// Bans lists active bans ordered by identity and drops expired ones.
func (r *Registry) Bans(now time.Time) []Ban {
	out := make([]Ban, 0, len(r.bans))
	for id, b := range r.bans {
		if !b.Active(now) {
			delete(r.bans, id)
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Admins

// SetAdmin grants or revokes admin status for one connection. Elevation is
// never inherited by another connection presenting the same identity.
func (r *Registry) SetAdmin(connID string, admin bool) {
	if admin {
		r.admins[connID] = struct{}{}
		return
	}
	delete(r.admins, connID)
}

// IsAdmin reports whether the connection holds admin status.
func (r *Registry) IsAdmin(connID string) bool {
	_, ok := r.admins[connID]
	return ok
}
