package core

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/lexyo-server/internal/store"
	"github.com/vovakirdan/lexyo-server/internal/utils"
)

// knownLangs are the /code language tags recognised on the first line.
var knownLangs = map[string]struct{}{
	"js": {}, "javascript": {}, "ts": {}, "typescript": {},
	"py": {}, "python": {},
	"html": {}, "css": {}, "json": {},
	"java": {}, "c": {}, "cpp": {}, "c++": {},
	"go": {}, "rust": {}, "php": {}, "sql": {},
	"bash": {}, "sh": {}, "lua": {},
}

// cmdCtx is the invocation of one slash command.
type cmdCtx struct {
	s    *Session
	room string
	// peer is set when the command was sent in a private room.
	peer *Session
	args string
}

func (c cmdCtx) private() bool { return c.peer != nil }

type cmdHandler func(h *ChatHub, c cmdCtx)

var commandTable = map[string]cmdHandler{
	"help":  (*ChatHub).cmdHelp,
	"me":    (*ChatHub).cmdMe,
	"code":  (*ChatHub).cmdCode,
	"admin": (*ChatHub).cmdAdmin,
	"mod":   (*ChatHub).cmdMod,
	"kick":  (*ChatHub).cmdKick,
	"ban":   (*ChatHub).cmdBan,
	"unban": (*ChatHub).cmdUnban,
	"kill":  (*ChatHub).cmdKill,
}

// splitCommand separates "/name args" at the first space or newline. The
// name is lowercased and returned without the slash.
func splitCommand(text string) (name, args string) {
	text = strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		name, args = text[:i], text[i+1:]
	} else {
		name = text
	}
	return strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(args)
}

func (h *ChatHub) runCommand(s *Session, room string, peer *Session, text string) {
	name, args := splitCommand(text)
	handler, ok := commandTable[name]
	if !ok {
		h.notice(s, fmt.Sprintf("Unknown command /%s. Type /help.", name))
		return
	}
	h.log.Debug().Str("pseudo", s.Pseudo).Str("room", room).Str("command", name).Msg("command")
	handler(h, cmdCtx{s: s, room: room, peer: peer, args: args})
}

const helpBase = "Available commands:\n" +
	"/help - show this help\n" +
	"/me <action> - express an action\n" +
	"/code [lang]\\n<your code> - send code blocks\n"

func (h *ChatHub) cmdHelp(c cmdCtx) {
	if c.private() {
		h.notice(c.s, "Available in private messages: /code, /me, /help")
		return
	}
	text := helpBase
	switch h.reg.Rank(c.s, c.room) {
	case RankAdmin:
		text += "\nAdmin commands:\n/kick <user> [duration]\n/ban <user> [duration]\n/unban <user>\n/kill <room>\n"
	case RankCreator:
		text += "\nChannel moderation:\n/mod <user>\n/kick <user> [duration]\n"
	case RankModerator:
		text += "\nChannel moderation:\n/kick <user> [duration]\n"
	}
	h.notice(c.s, text)
}

// recipients are the sessions a /me or /code line is delivered to.
func (h *ChatHub) recipients(c cmdCtx) []*Session {
	if c.private() {
		out := []*Session{c.s}
		if h.alive(c.peer) {
			out = append(out, c.peer)
		}
		return out
	}
	return h.reg.Occupants(c.room)
}

func (h *ChatHub) post(c cmdCtx, kind EventKind, body store.Body) {
	now := h.now()
	rec := store.Record{Pseudo: c.s.Pseudo, Color: c.s.Color, Timestamp: now, Body: body}
	h.appendRecord(c.room, rec)
	if !c.private() {
		h.reg.Touch(c.room, now, true)
		h.scheduleSave()
	}
	for _, r := range h.recipients(c) {
		d := &Delivery{Record: rec, Translated: rec.Payload(), Private: c.private()}
		if c.private() {
			d.With = c.peer.Pseudo
			if r == c.peer {
				d.With = c.s.Pseudo
			}
		}
		h.emit(r, &Event{Kind: kind, Room: c.room, Message: d})
	}
}

func (h *ChatHub) cmdMe(c cmdCtx) {
	if c.args == "" {
		h.notice(c.s, "Usage: /me <action>")
		return
	}
	h.post(c, EventAction, store.Action{Content: c.args})
}

// parseCode reads "/code" arguments in block form ("go\n<body>") or inline
// form ("go <body>"). Without a known tag the whole input is the body.
func parseCode(args string) (lang, body string) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return "", ""
	}
	first, rest, _ := strings.Cut(raw, "\n")
	tag, inline, _ := strings.Cut(strings.TrimSpace(first), " ")
	if _, ok := knownLangs[strings.ToLower(tag)]; !ok {
		return store.DefaultCodeLang, raw
	}
	body = rest
	if inline = strings.TrimSpace(inline); inline != "" {
		body = inline
		if rest != "" {
			body += "\n" + rest
		}
	}
	return strings.ToLower(tag), strings.TrimSpace(body)
}

func (h *ChatHub) cmdCode(c cmdCtx) {
	if c.args == "" {
		h.notice(c.s, "Usage:\n/code [lang]\n<your code>")
		return
	}
	lang, body := parseCode(c.args)
	if body == "" {
		h.notice(c.s, "No code detected.")
		return
	}
	h.post(c, EventCode, store.Code{Lang: lang, Content: body})
}

func (h *ChatHub) cmdAdmin(c cmdCtx) {
	s := c.s
	now := h.now()
	key := s.Key()

	if h.guard.Locked(key, now) {
		h.notice(s, "Too many /admin attempts. Try again later.")
		h.log.Warn().Str("key", key).Msg("admin attempt while locked")
		return
	}
	if s.Admin {
		h.notice(s, "You are already admin.")
		return
	}
	if c.args == "" {
		h.notice(s, "Usage: /admin <key>")
		return
	}
	if h.keys == nil || !h.keys.Check(c.args) {
		locked := h.guard.Fail(key, now)
		h.notice(s, "Invalid admin key.")
		h.log.Warn().Str("key", key).Bool("locked", locked).Msg("invalid admin key")
		return
	}
	h.guard.Reset(key)

	if holder, ok := h.reg.SessionByPseudo(AdminPseudo); ok && holder != s {
		h.evictAdminPseudo(holder)
	}

	old := s.Pseudo
	s.PrevPseudo = old
	s.Pseudo = AdminPseudo
	s.Admin = true
	h.reg.SetAdmin(s.ConnID, true)

	h.emit(s, &Event{Kind: EventIdentityUpdate, Pseudo: s.Pseudo, Color: s.Color, Admin: true})
	h.noticeRoom(s.Room, fmt.Sprintf("%s is now logged in as admin.", old))
	h.sendRoomUsers(s.Room)
	h.notice(s, "Admin mode enabled.")
	h.log.Info().Str("conn_id", s.ConnID).Str("previous", old).Msg("admin elevated")
}

// evictAdminPseudo gives the reserved admin name back by renaming its holder.
func (h *ChatHub) evictAdminPseudo(holder *Session) {
	name := holder.PrevPseudo
	if name == "" || h.reg.PseudoInUse(name) {
		name = "anon-" + utils.NewID()[:4]
	}
	holder.Pseudo = name
	holder.PrevPseudo = ""
	h.emit(holder, &Event{Kind: EventIdentityUpdate, Pseudo: name, Color: holder.Color, Admin: holder.Admin})
	h.notice(holder, fmt.Sprintf("The admin name was claimed by another session. You are now %s.", name))
	h.sendRoomUsers(holder.Room)
}

func (h *ChatHub) cmdMod(c cmdCtx) {
	s := c.s
	if c.private() || store.IsPrivate(c.room) {
		h.notice(s, "Moderation is only available in public channels.")
		return
	}
	if h.reg.Rank(s, c.room) < RankCreator {
		h.notice(s, "Creator only.")
		return
	}
	if c.args == "" {
		h.notice(s, "Usage: /mod <user>")
		return
	}
	target, ok := h.occupantByPseudo(c.room, c.args)
	if !ok {
		h.notice(s, fmt.Sprintf("User '%s' not found in this channel.", c.args))
		return
	}
	if target.Admin {
		h.notice(s, "That user is an admin.")
		return
	}
	room, ok := h.reg.Room(c.room)
	if !ok {
		return
	}
	room.Moderators[target.Key()] = struct{}{}
	h.noticeRoom(c.room, fmt.Sprintf("%s is now a moderator ⭐", target.Pseudo))
	h.sendRoomUsers(c.room)
	h.scheduleSave()
}

func (h *ChatHub) occupantByPseudo(room, pseudo string) (*Session, bool) {
	target, ok := h.reg.SessionByPseudo(pseudo)
	if !ok || target.Room != room {
		return nil, false
	}
	return target, true
}

func (h *ChatHub) cmdKick(c cmdCtx) {
	s := c.s
	parts := strings.Fields(c.args)
	if !s.Admin && !store.IsPrivate(c.room) && h.reg.Rank(s, c.room) >= RankModerator {
		h.localKick(c, parts)
		return
	}
	if !s.Admin {
		h.notice(s, "Admin only.")
		return
	}
	if len(parts) == 0 {
		h.notice(s, "Usage: /kick <user> [duration]")
		return
	}
	target, ok := h.reg.SessionByPseudo(parts[0])
	if !ok {
		h.notice(s, fmt.Sprintf("User '%s' not found.", parts[0]))
		return
	}
	if target == s {
		h.notice(s, "You cannot kick yourself.")
		return
	}
	if target.Admin {
		h.notice(s, "You cannot kick an admin.")
		return
	}
	room := target.Room
	if len(parts) > 1 {
		if d, ok := parseDuration(parts[1]); ok {
			if pr, public := h.reg.Room(room); public {
				pr.Kick(target.Key(), h.now().Add(d))
			}
		}
	}
	msg := fmt.Sprintf("%s was kicked by an admin.", target.Pseudo)
	h.noticeRoom(room, msg)
	if s.Room != room {
		h.notice(s, msg)
	}
	h.emit(target, &Event{Kind: EventUserKicked, Room: room, Reason: "You were kicked by an admin."})
	h.dropClient(target.client)
	h.log.Info().Str("target", target.Pseudo).Str("room", room).Msg("admin kick")
}

func (h *ChatHub) localKick(c cmdCtx, parts []string) {
	s := c.s
	if len(parts) == 0 {
		h.notice(s, "Usage: /kick <user> [duration]")
		return
	}
	block := h.opts.KickBlock
	if len(parts) > 1 {
		if d, ok := parseDuration(parts[1]); ok {
			block = d
		}
	}
	target, ok := h.occupantByPseudo(c.room, parts[0])
	if !ok {
		h.notice(s, fmt.Sprintf("User '%s' not found.", parts[0]))
		return
	}
	if target == s {
		h.notice(s, "You cannot kick yourself.")
		return
	}
	if target.Admin {
		h.notice(s, "You cannot kick an admin.")
		return
	}
	if !h.reg.CanModerate(s, target, c.room) {
		h.notice(s, "You cannot kick the creator.")
		return
	}
	room, ok := h.reg.Room(c.room)
	if !ok {
		return
	}
	room.Kick(target.Key(), h.now().Add(block))

	h.noticeRoom(c.room, fmt.Sprintf("%s was kicked by a moderator ⭐.", target.Pseudo))
	h.emit(target, &Event{Kind: EventUserKicked, Room: c.room, Reason: "You were kicked by a moderator."})
	h.dropClient(target.client)
	h.log.Info().Str("target", target.Pseudo).Str("room", c.room).Dur("block", block).Msg("moderator kick")
}

func (h *ChatHub) cmdBan(c cmdCtx) {
	s := c.s
	if !s.Admin {
		h.notice(s, "Admin only.")
		return
	}
	parts := strings.Fields(c.args)
	if len(parts) == 0 {
		h.notice(s, "Usage: /ban <user> [duration]")
		return
	}
	target, ok := h.reg.SessionByPseudo(parts[0])
	if !ok {
		h.notice(s, fmt.Sprintf("User '%s' not found.", parts[0]))
		return
	}
	if target == s {
		h.notice(s, "You cannot ban yourself.")
		return
	}

	ban := Ban{Identity: target.Key(), Pseudo: target.Pseudo}
	if len(parts) > 1 {
		if d, ok := parseDuration(parts[1]); ok {
			ban.Until = h.now().Add(d)
		}
	}
	h.reg.Ban(ban)

	readable := "permanently"
	if !ban.Permanent() {
		readable = "until " + ban.Until.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	msg := fmt.Sprintf("%s was banned %s.", target.Pseudo, readable)
	h.noticeRoom(target.Room, msg)
	if s.Room != target.Room {
		h.notice(s, msg)
	}
	for _, victim := range h.reg.SessionsOf(ban.Identity) {
		h.emit(victim, &Event{Kind: EventUserKicked, Room: victim.Room, Reason: fmt.Sprintf("You were banned %s.", readable)})
		h.dropClient(victim.client)
	}
	h.log.Info().Str("identity", ban.Identity).Str("pseudo", ban.Pseudo).Str("until", readable).Msg("ban recorded")
}

func (h *ChatHub) cmdUnban(c cmdCtx) {
	s := c.s
	if !s.Admin {
		h.notice(s, "Admin only.")
		return
	}
	if c.args == "" {
		h.notice(s, "Usage: /unban <user>")
		return
	}
	if removed := h.reg.Unban(c.args); len(removed) > 0 {
		h.notice(s, fmt.Sprintf("User '%s' is now unbanned.", c.args))
		h.log.Info().Str("query", c.args).Int("removed", len(removed)).Msg("unban")
		return
	}
	h.notice(s, fmt.Sprintf("No active ban for '%s'.", c.args))
}

func (h *ChatHub) cmdKill(c cmdCtx) {
	s := c.s
	if !s.Admin {
		h.notice(s, "Admin only.")
		return
	}
	target := c.args
	if target == "" {
		target = c.room
	}
	switch err := h.killRoom(target, "an admin"); err {
	case nil:
	case ErrOfficialRoom:
		h.notice(s, "Cannot delete official channel.")
	default:
		h.notice(s, fmt.Sprintf("Channel %s not found.", target))
	}
}

// killRoom deletes a public room, moves its occupants to the default room and
// persists the directory right away.
func (h *ChatHub) killRoom(name, by string) error {
	if store.IsPrivate(name) {
		return ErrRoomNotFound
	}
	occupants := h.reg.Occupants(name)
	if err := h.reg.DeleteRoom(name); err != nil {
		return err
	}

	def := h.reg.DefaultRoom()
	now := h.now()
	for _, o := range occupants {
		o.Room = def
		h.emit(o, &Event{Kind: EventSwitchedRoom, Room: def})
		h.sendHistory(o, def)
	}
	h.reg.Touch(def, now, false)
	h.removeHistory(name)
	h.saveDirectory()

	h.broadcastChannels()
	h.toAll(&Event{Kind: EventRoomDeleted, Room: name})
	h.noticeRoom(def, fmt.Sprintf("%s was deleted by %s.", name, by))
	h.sendRoomUsers(def)
	h.broadcastCounts()
	h.log.Info().Str("room", name).Str("by", by).Int("moved", len(occupants)).Msg("room deleted")
	return nil
}
