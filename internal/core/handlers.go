package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/lexyo-server/internal/abuse"
	"github.com/vovakirdan/lexyo-server/internal/store"
	"github.com/vovakirdan/lexyo-server/internal/translate"
	"github.com/vovakirdan/lexyo-server/internal/utils"
)

// maxParallelTranslations bounds concurrent backend calls of one fan-out.
const maxParallelTranslations = 4

// rateLimited applies the shared sliding-window limiter to a command.
func (h *ChatHub) rateLimited(c *Client, identity string) bool {
	if identity == "" {
		identity = c.ID
	}
	if h.limiter.Blocked(c.Addr, identity, h.now()) {
		h.log.Warn().Str("conn_id", c.ID).Str("addr", c.Addr).Str("identity", identity).Msg("rate limited")
		return true
	}
	return false
}

// handleRegister verifies the challenge, then validates and creates the session.
func (h *ChatHub) handleRegister(c *Client, cmd *Command) {
	if _, ok := h.reg.Session(c.ID); ok {
		return
	}
	if _, pending := h.registering[c.ID]; pending {
		return
	}
	identity := strings.TrimSpace(cmd.Identity)
	if h.rateLimited(c, identity) {
		return
	}

	if h.captcha == nil {
		h.completeRegister(c, cmd, identity, true)
		return
	}
	h.registering[c.ID] = struct{}{}
	token := cmd.CaptchaToken
	await(h, func(ctx context.Context) bool {
		return h.captcha.Verify(ctx, token)
	}, func(passed bool) {
		delete(h.registering, c.ID)
		h.completeRegister(c, cmd, identity, passed)
	})
}

func (h *ChatHub) completeRegister(c *Client, cmd *Command, identity string, captchaPassed bool) {
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}
	if _, ok := h.reg.Session(c.ID); ok {
		return
	}
	reject := func(msg string) {
		h.send(c, &Event{Kind: EventPseudoTaken, Text: msg})
	}
	if !captchaPassed {
		reject("Captcha failed. Try again.")
		return
	}

	key := identity
	if key == "" {
		key = c.ID
	}
	now := h.now()
	defaultRoom := h.reg.DefaultRoom()

	if _, banned := h.reg.Banned(key, now); banned {
		reject("You are banned from this server.")
		return
	}
	if room, ok := h.reg.Room(defaultRoom); ok && room.Kicked(key, now) {
		reject(fmt.Sprintf("You are temporarily blocked from %s.", defaultRoom))
		return
	}

	pseudo := strings.TrimSpace(cmd.Pseudo)
	if !ValidPseudo(pseudo) {
		reject("Invalid nickname. Use 1-13 letters, numbers, - or _.")
		return
	}
	if ReservedPseudo(pseudo) {
		reject(fmt.Sprintf("Nickname '%s' is reserved.", pseudo))
		return
	}
	if h.reg.PseudoInUse(pseudo) {
		reject(fmt.Sprintf("Nickname '%s' is already in use.", pseudo))
		return
	}

	s := &Session{
		ConnID:   c.ID,
		Pseudo:   pseudo,
		Locale:   normalizeLocale(cmd.Locale),
		Identity: identity,
		Room:     defaultRoom,
		Color:    utils.RandomColor(),
		client:   c,
	}
	h.reg.AddSession(s)
	h.reg.Touch(defaultRoom, now, false)

	h.emit(s, &Event{Kind: EventJoinedRoom, Room: defaultRoom, Color: s.Color, Pseudo: s.Pseudo, Admin: s.Admin})
	h.noticeRoom(defaultRoom, fmt.Sprintf("%s joined %s.", pseudo, defaultRoom))
	h.sendRoomUsers(defaultRoom)
	h.emit(s, &Event{Kind: EventChannelList, Channels: h.reg.Channels()})
	h.broadcastCounts()
	h.sendHistory(s, defaultRoom)

	h.log.Info().
		Str("conn_id", c.ID).
		Str("pseudo", pseudo).
		Str("locale", s.Locale).
		Str("identity", identity).
		Msg("session registered")
}

// handleJoin moves s into an existing public room.
func (h *ChatHub) handleJoin(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	target := strings.TrimSpace(cmd.Room)
	if target == "" || store.IsPrivate(target) || target == s.Room {
		return
	}
	room, ok := h.reg.Room(target)
	if !ok {
		h.notice(s, fmt.Sprintf("Channel %s does not exist.", target))
		return
	}
	now := h.now()
	if room.Kicked(s.Key(), now) {
		h.notice(s, fmt.Sprintf("You are temporarily blocked from %s.", target))
		return
	}

	old := s.Room
	s.Room = target
	h.reg.Touch(target, now, false)
	h.reg.Touch(old, now, false)

	h.emit(s, &Event{Kind: EventSwitchedRoom, Room: target})
	h.noticeRoom(target, fmt.Sprintf("%s joined %s.", s.Pseudo, target))
	h.sendRoomUsers(target)
	h.sendRoomUsers(old)
	h.sendHistory(s, target)
	h.broadcastCounts()
	h.syncPrivate()
}

// handleCreateRoom creates a public room owned by s and moves s into it.
func (h *ChatHub) handleCreateRoom(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	fail := func(msg string) {
		h.emit(s, &Event{Kind: EventRoomCreateError, Text: msg})
	}
	name := strings.TrimSpace(cmd.Room)
	if name == "" {
		fail("Room name cannot be empty")
		return
	}

	now := h.now()
	room, err := h.reg.CreatePublicRoom(name, s.Key(), now)
	switch {
	case errors.Is(err, ErrInvalidRoomName):
		fail("Invalid channel name. Use only letters, numbers, - or _.")
		return
	case errors.Is(err, ErrAlreadyCreated):
		fail(fmt.Sprintf("You have already created a room. You can create another one once your current room has been empty for %s.", humanDuration(h.opts.RoomTTL)))
		return
	case errors.Is(err, ErrRoomExists):
		fail("Room already exists")
		return
	case err != nil:
		h.log.Error().Err(err).Str("room", name).Msg("create room failed")
		fail("Room could not be created")
		return
	}

	old := s.Room
	s.Room = room.Name
	h.reg.Touch(old, now, false)

	h.emit(s, &Event{Kind: EventSwitchedRoom, Room: room.Name})
	h.sendRoomUsers(old)
	h.sendRoomUsers(room.Name)
	h.sendHistory(s, room.Name)
	h.broadcastChannels()
	h.broadcastCounts()
	h.emit(s, &Event{Kind: EventRoomCreated, Room: room.Name})
	h.scheduleSave()
	h.syncPrivate()

	h.log.Info().Str("room", room.Name).Str("creator", s.Key()).Msg("room created")
}

// handleSendMessage runs a public chat line through the abuse checks, then
// dispatches it as a command or translates and fans it out.
func (h *ChatHub) handleSendMessage(s *Session, cmd *Command) {
	if h.rateLimited(s.client, s.Identity) {
		return
	}
	now := h.now()
	if h.opts.MinMessageDelay > 0 && !s.LastMessageAt.IsZero() && now.Sub(s.LastMessageAt) < h.opts.MinMessageDelay {
		h.log.Debug().Str("pseudo", s.Pseudo).Msg("message under minimum delay dropped")
		return
	}
	s.LastMessageAt = now

	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return
	}
	if n := len([]rune(text)); n > h.opts.MaxMessageLength {
		h.notice(s, fmt.Sprintf("Message too long (%d chars).", n))
		return
	}

	s.Spam.Observe(text, now)
	if h.applySpam(s) {
		return
	}

	room := s.Room
	if store.IsPrivate(room) {
		return
	}
	if strings.HasPrefix(text, "/") {
		h.runCommand(s, room, nil, text)
		return
	}

	h.reg.Touch(room, now, true)
	h.scheduleSave()

	rec := store.Record{
		Pseudo:    s.Pseudo,
		Color:     s.Color,
		Timestamp: now,
		Body:      store.Text{Original: text, SourceLang: s.Locale},
	}
	h.appendRecord(room, rec)
	h.fanOut(room, rec)
}

// applySpam enforces the next spam penalty level, if any, and reports whether
// the message must be discarded.
func (h *ChatHub) applySpam(s *Session) bool {
	penalty := s.Spam.Escalate()
	if penalty == abuse.PenaltyNone {
		return false
	}
	room := s.Room
	now := h.now()
	logEv := h.log.Warn().Str("pseudo", s.Pseudo).Int("score", s.Spam.Score).Str("penalty", penalty.String())

	switch penalty {
	case abuse.PenaltyWarn:
		h.noticeRoom(room, fmt.Sprintf("%s, please slow down, spam detected.", s.Pseudo))
		h.notice(s, "Your message rate is too high.")
		logEv.Msg("spam warning")
		return false
	case abuse.PenaltyKick:
		h.noticeRoom(room, fmt.Sprintf("%s was kicked for spam.", s.Pseudo))
	case abuse.PenaltyTempBan:
		h.reg.Ban(Ban{Identity: s.Key(), Pseudo: s.Pseudo, Until: now.Add(abuse.TempBanDuration)})
		h.noticeRoom(room, fmt.Sprintf("%s was banned 10 minutes (spam).", s.Pseudo))
	case abuse.PenaltyPermaBan:
		h.reg.Ban(Ban{Identity: s.Key(), Pseudo: s.Pseudo})
		h.noticeRoom(room, fmt.Sprintf("%s was permanently banned (spam).", s.Pseudo))
	}
	h.emit(s, &Event{Kind: EventForceDisconnect, Room: room, Reason: penalty.String()})
	logEv.Msg("spam penalty applied")
	h.dropClient(s.client)
	return true
}

// fanOut delivers a text record to every occupant of room, translated into
// each occupant's locale. Each target locale is translated once.
func (h *ChatHub) fanOut(room string, rec store.Record) {
	body, _ := rec.Body.(store.Text)
	passthrough := h.translator == nil || translate.ContainsURL(body.Original)

	var targets []string
	seen := make(map[string]struct{})
	for _, o := range h.reg.Occupants(room) {
		if passthrough || o.Locale == body.SourceLang {
			continue
		}
		if _, ok := seen[o.Locale]; !ok {
			seen[o.Locale] = struct{}{}
			targets = append(targets, o.Locale)
		}
	}

	deliver := func(translated map[string]string) {
		for _, o := range h.reg.Occupants(room) {
			d := &Delivery{Record: rec, Translated: body.Original}
			if t, ok := translated[o.Locale]; ok {
				d.Translated = t
				d.TargetLang = o.Locale
			}
			h.emit(o, &Event{Kind: EventMessage, Room: room, Message: d})
		}
	}
	if len(targets) == 0 {
		deliver(nil)
		return
	}

	await(h, func(ctx context.Context) map[string]string {
		results := make([]string, len(targets))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelTranslations)
		for i, tgt := range targets {
			g.Go(func() error {
				results[i] = h.translator.Translate(gctx, body.Original, body.SourceLang, tgt)
				return nil
			})
		}
		_ = g.Wait()
		out := make(map[string]string, len(targets))
		for i, tgt := range targets {
			out[tgt] = results[i]
		}
		return out
	}, deliver)
}

// humanDuration renders a duration the way notices phrase it.
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
