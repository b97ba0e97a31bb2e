package core

import "github.com/vovakirdan/lexyo-server/internal/store"

// Rank orders moderation authority. A higher rank may act on a lower or equal one.
type Rank int

const (
	RankParticipant Rank = iota
	RankModerator
	RankCreator
	RankAdmin
)

func (r Rank) String() string {
	switch r {
	case RankAdmin:
		return "admin"
	case RankCreator:
		return "creator"
	case RankModerator:
		return "moderator"
	default:
		return "participant"
	}
}

// Rank resolves the authority of s within room. Creator and moderator ranks
// only exist in public rooms.
func (r *Registry) Rank(s *Session, room string) Rank {
	if s == nil {
		return RankParticipant
	}
	if s.Admin {
		return RankAdmin
	}
	if store.IsPrivate(room) {
		return RankParticipant
	}
	pr, ok := r.rooms[room]
	if !ok {
		return RankParticipant
	}
	switch {
	case pr.IsCreator(s.Key()):
		return RankCreator
	case pr.IsModerator(s.Key()):
		return RankModerator
	default:
		return RankParticipant
	}
}

// CanModerate reports whether actor may remove target from room: the actor
// needs at least moderator rank, admins are immune, and nobody outranks
// themselves upward.
func (r *Registry) CanModerate(actor, target *Session, room string) bool {
	if actor == nil || target == nil || actor == target || target.Admin {
		return false
	}
	a := r.Rank(actor, room)
	if a < RankModerator {
		return false
	}
	return r.Rank(target, room) <= a
}
