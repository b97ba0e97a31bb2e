package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/lexyo-server/internal/store"
	"github.com/vovakirdan/lexyo-server/internal/translate"
)

// privateCommands are the only commands accepted inside private messages.
var privateCommands = map[string]struct{}{"help": {}, "me": {}, "code": {}}

// privatePeer resolves the connected session addressed by pseudo. It reports
// the problem to s and returns nil when there is none.
func (h *ChatHub) privatePeer(s *Session, pseudo string) *Session {
	peer, ok := h.reg.SessionByPseudo(pseudo)
	if !ok {
		h.notice(s, fmt.Sprintf("%s is not connected.", pseudo))
		return nil
	}
	return peer
}

func (h *ChatHub) privateRoom(s, peer *Session) (string, bool) {
	id, err := h.reg.GetOrCreatePrivateRoom(s.Identity, peer.Identity, h.now())
	if errors.Is(err, ErrPrivateUnavailable) {
		h.notice(s, "Private messaging is unavailable (missing identity).")
		return "", false
	}
	if err != nil {
		h.log.Error().Err(err).Str("pseudo", s.Pseudo).Msg("private room failed")
		return "", false
	}
	return id, true
}

// switchRoom moves s into room and refreshes the rosters of both rooms.
func (h *ChatHub) switchRoom(s *Session, room string) bool {
	old := s.Room
	if old == room {
		return false
	}
	now := h.now()
	s.Room = room
	h.reg.Touch(room, now, false)
	h.reg.Touch(old, now, false)
	h.sendRoomUsers(old)
	h.sendRoomUsers(room)
	h.broadcastCounts()
	return true
}

// handleOpenPrivate hands out the private room id shared with a peer without
// moving the session.
func (h *ChatHub) handleOpenPrivate(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	target := strings.TrimSpace(cmd.Target)
	if target == "" || strings.EqualFold(target, s.Pseudo) {
		return
	}
	peer := h.privatePeer(s, target)
	if peer == nil {
		return
	}
	id, ok := h.privateRoom(s, peer)
	if !ok {
		return
	}
	h.reg.MarkPrivateConnected(id, s.Identity, h.now())
	h.syncPrivate()
	h.emit(s, &Event{Kind: EventOpenPrivate, Room: id, With: peer.Pseudo})
	h.log.Debug().Str("room", id).Str("from", s.Pseudo).Str("to", peer.Pseudo).Msg("private room opened")
}

// handleSwitchPrivate moves s into a private room it participates in.
func (h *ChatHub) handleSwitchPrivate(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	id := strings.TrimSpace(cmd.Room)
	if !store.IsPrivate(id) {
		return
	}
	p, ok := h.reg.PrivateRoom(id)
	if !ok {
		h.notice(s, "This private room no longer exists.")
		return
	}
	if !p.Has(s.Identity) {
		h.notice(s, "Access denied to this private room.")
		return
	}
	h.reg.MarkPrivateConnected(id, s.Identity, h.now())
	if h.switchRoom(s, id) {
		h.emit(s, &Event{Kind: EventSwitchedRoom, Room: id})
		h.sendHistory(s, id)
	}
	h.syncPrivate()
}

// handleSendPrivate delivers a message to one peer through their shared
// private room, switching the sender into it.
func (h *ChatHub) handleSendPrivate(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	now := h.now()
	if h.opts.MinMessageDelay > 0 && !s.LastMessageAt.IsZero() && now.Sub(s.LastMessageAt) < h.opts.MinMessageDelay {
		return
	}
	s.LastMessageAt = now

	text := strings.TrimSpace(cmd.Text)
	target := strings.TrimSpace(cmd.Target)
	if text == "" || target == "" {
		return
	}
	if n := len([]rune(text)); n > h.opts.MaxMessageLength {
		h.notice(s, fmt.Sprintf("Private message too long (%d chars).", n))
		return
	}
	peer := h.privatePeer(s, target)
	if peer == nil || peer == s {
		return
	}
	id, ok := h.privateRoom(s, peer)
	if !ok {
		return
	}
	h.reg.MarkPrivateConnected(id, s.Identity, now)
	h.reg.MarkPrivateConnected(id, peer.Identity, now)
	h.switchRoom(s, id)
	h.reg.Touch(id, now, true)
	defer h.syncPrivate()

	if strings.HasPrefix(text, "/") {
		name, _ := splitCommand(text)
		if _, allowed := privateCommands[name]; !allowed {
			h.notice(s, fmt.Sprintf("Command /%s is not available in private messages.", name))
			return
		}
		h.runCommand(s, id, peer, text)
		return
	}

	rec := store.Record{
		Pseudo:    s.Pseudo,
		Color:     s.Color,
		Timestamp: now,
		Body:      store.Text{Original: text, SourceLang: s.Locale},
	}
	h.appendRecord(id, rec)
	h.emit(s, &Event{Kind: EventMessage, Room: id, Message: &Delivery{
		Record: rec, Translated: text, TargetLang: s.Locale, Private: true, With: peer.Pseudo,
	}})

	deliver := func(translated string) {
		if !h.alive(peer) {
			return
		}
		d := &Delivery{Record: rec, Translated: translated, Private: true, With: s.Pseudo}
		if translated != text {
			d.TargetLang = peer.Locale
		}
		h.emit(peer, &Event{Kind: EventMessage, Room: id, Message: d})
	}
	if h.translator == nil || peer.Locale == s.Locale || translate.ContainsURL(text) {
		deliver(text)
		return
	}
	src, tgt := s.Locale, peer.Locale
	await(h, func(ctx context.Context) string {
		return h.translator.Translate(ctx, text, src, tgt)
	}, deliver)
}
