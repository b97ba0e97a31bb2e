package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/store"
)

func TestHubRegisterRejections(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	h.register("1", "Bob", "id-bob", "en")

	tests := []struct {
		name   string
		pseudo string
		want   string
	}{
		{"case-insensitive duplicate", "bob", "Nickname 'bob' is already in use."},
		{"reserved", "Admin", "Nickname 'Admin' is reserved."},
		{"too long", "abcdefghijklmn", "Invalid nickname. Use 1-13 letters, numbers, - or _."},
		{"bad characters", "b@b", "Invalid nickname. Use 1-13 letters, numbers, - or _."},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := h.connect("r" + string(rune('a'+i)))
			c.Commands <- &Command{Kind: CommandRegister, Pseudo: tt.pseudo, Identity: "other"}
			ev := mustEvent(t, c.Events, EventPseudoTaken)
			if ev.Text != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, ev.Text)
			}
		})
	}
}

func TestHubRegisterJoinsDefaultRoom(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	alice := h.connect("1")
	list := mustEvent(t, alice.Events, EventChannelList)
	if len(list.Channels) == 0 || list.Channels[0] != "#general" {
		t.Fatalf("expected #general first in channel list, got %v", list.Channels)
	}

	alice.Commands <- &Command{Kind: CommandRegister, Pseudo: "alice", Identity: "id-a", Locale: "fr-CA"}
	joined := mustEvent(t, alice.Events, EventJoinedRoom)
	if joined.Room != "#general" || !strings.HasPrefix(joined.Color, "hsl(") {
		t.Fatalf("unexpected joined event: %+v", joined)
	}
	mustNotice(t, alice.Events, "alice joined #general.")

	users := mustEvent(t, alice.Events, EventRoomUsers)
	if len(users.Users) != 1 || users.Users[0].Pseudo != "alice" || users.Users[0].Locale != "fr" {
		t.Fatalf("unexpected room users: %+v", users.Users)
	}
	counts := mustEvent(t, alice.Events, EventRoomCounts)
	if counts.Counts["#general"] != 1 {
		t.Fatalf("expected one occupant in #general, got %v", counts.Counts)
	}
	mustEvent(t, alice.Events, EventRoomHistory)
}

func TestHubCommandBeforeRegisterIsRejected(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	c := h.connect("1")
	say(c, "hello")
	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotRegistered {
		t.Fatalf("expected not_registered error, got %+v", ev)
	}
}

func TestHubCaptcha(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, token string) bool { return token == "ok" })
	h := newHarness(t, Deps{Captcha: verifier}, nil)

	c := h.connect("1")
	c.Commands <- &Command{Kind: CommandRegister, Pseudo: "alice", CaptchaToken: "bad"}
	mustNotice(t, c.Events, "Captcha failed. Try again.")

	c.Commands <- &Command{Kind: CommandRegister, Pseudo: "alice", CaptchaToken: "ok"}
	mustEvent(t, c.Events, EventJoinedRoom)
}

func TestHubBanScenario(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("s3cret")}, nil)

	root := h.register("1", "root", "id-root", "en")
	alice := h.register("2", "alice", "id-alice", "en")

	say(root, "/admin s3cret")
	mustNotice(t, root.Events, "Admin mode enabled.")

	say(root, "/ban alice 10m")
	kicked := mustEvent(t, alice.Events, EventUserKicked)
	if !strings.HasPrefix(kicked.Reason, "You were banned until ") {
		t.Fatalf("unexpected ban reason %q", kicked.Reason)
	}
	mustClose(t, alice.Events)

	bans, err := h.hub.Bans(context.Background())
	if err != nil {
		t.Fatalf("bans: %v", err)
	}
	if len(bans) != 1 || bans[0].Identity != "id-alice" || bans[0].Pseudo != "alice" {
		t.Fatalf("unexpected bans: %+v", bans)
	}
	if want := h.clock.Now().Add(10 * time.Minute); !bans[0].Until.Equal(want) {
		t.Fatalf("expected ban until %v, got %v", want, bans[0].Until)
	}

	again := h.connect("3")
	again.Commands <- &Command{Kind: CommandRegister, Pseudo: "alice", Identity: "id-alice"}
	mustNotice(t, again.Events, "You are banned from this server.")

	h.clock.Advance(11 * time.Minute)
	again.Commands <- &Command{Kind: CommandRegister, Pseudo: "alice", Identity: "id-alice"}
	mustEvent(t, again.Events, EventJoinedRoom)
}

func TestHubUnbanByPseudoAfterDisconnect(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("s3cret")}, nil)

	root := h.register("1", "root", "id-root", "en")
	bob := h.register("2", "bob", "id-bob", "en")

	say(root, "/admin s3cret")
	mustNotice(t, root.Events, "Admin mode enabled.")

	say(root, "/ban bob")
	ev := mustEvent(t, bob.Events, EventUserKicked)
	if ev.Reason != "You were banned permanently." {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	mustClose(t, bob.Events)

	say(root, "/unban bob")
	mustNotice(t, root.Events, "User 'bob' is now unbanned.")
	say(root, "/unban bob")
	mustNotice(t, root.Events, "No active ban for 'bob'.")

	n, err := h.hub.Unban(context.Background(), "id-bob")
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left to unban, got %d, %v", n, err)
	}
}

func TestHubModeratorKickBlocksRejoin(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	alice := h.register("1", "alice", "id-alice", "en")
	bob := h.register("2", "bob", "id-bob", "en")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Room: "Den"}
	created := mustEvent(t, alice.Events, EventRoomCreated)
	if created.Room != "den" {
		t.Fatalf("expected lowercased room name, got %q", created.Room)
	}

	bob.Commands <- &Command{Kind: CommandJoin, Room: "den"}
	mustEvent(t, bob.Events, EventSwitchedRoom)

	say(bob, "/kick alice")
	mustNotice(t, bob.Events, "Admin only.")

	say(alice, "/kick bob")
	ev := mustEvent(t, bob.Events, EventUserKicked)
	if ev.Reason != "You were kicked by a moderator." {
		t.Fatalf("unexpected reason %q", ev.Reason)
	}
	mustClose(t, bob.Events)
	mustNotice(t, alice.Events, "bob was kicked by a moderator ⭐.")

	bob2 := h.register("3", "bob", "id-bob", "en")
	bob2.Commands <- &Command{Kind: CommandJoin, Room: "den"}
	mustNotice(t, bob2.Events, "You are temporarily blocked from den.")

	h.clock.Advance(6 * time.Minute)
	bob2.Commands <- &Command{Kind: CommandJoin, Room: "den"}
	switched := mustEvent(t, bob2.Events, EventSwitchedRoom)
	if switched.Room != "den" {
		t.Fatalf("expected switch to den, got %q", switched.Room)
	}
}

func TestHubCreateRoomErrors(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	alice := h.register("1", "alice", "id-alice", "en")
	bob := h.register("2", "bob", "id-bob", "en")

	alice.Commands <- &Command{Kind: CommandCreateRoom, Room: "den"}
	mustEvent(t, alice.Events, EventRoomCreated)

	tests := []struct {
		name   string
		client *Client
		room   string
		want   string
	}{
		{"empty", bob, "  ", "Room name cannot be empty"},
		{"invalid", bob, "no spaces", "Invalid channel name. Use only letters, numbers, - or _."},
		{"duplicate", bob, "DEN", "Room already exists"},
		{"second room", alice, "other", "You have already created a room. You can create another one once your current room has been empty for 10 minutes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.client.Commands <- &Command{Kind: CommandCreateRoom, Room: tt.room}
			ev := mustEvent(t, tt.client.Events, EventRoomCreateError)
			if ev.Text != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, ev.Text)
			}
		})
	}
}

func TestHubAdminLockout(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("s3cret")}, nil)

	mallory := h.register("1", "mallory", "id-m", "en")
	for i := 0; i < 5; i++ {
		say(mallory, "/admin guess"+string(rune('a'+i)))
		mustNotice(t, mallory.Events, "Invalid admin key.")
	}

	say(mallory, "/admin s3cret")
	mustNotice(t, mallory.Events, "Too many /admin attempts. Try again later.")

	h.clock.Advance(6 * time.Minute)
	say(mallory, "/admin s3cret")
	mustNotice(t, mallory.Events, "Admin mode enabled.")
}

func TestHubAdminEvictsPreviousHolder(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("k")}, nil)

	ann := h.register("1", "ann", "id-ann", "en")
	ben := h.register("2", "ben", "id-ben", "en")

	say(ann, "/admin k")
	ev := mustEvent(t, ann.Events, EventIdentityUpdate)
	if ev.Pseudo != AdminPseudo || !ev.Admin {
		t.Fatalf("unexpected identity update: %+v", ev)
	}

	say(ben, "/admin k")
	evicted := mustEvent(t, ann.Events, EventIdentityUpdate)
	if evicted.Pseudo != "ann" {
		t.Fatalf("expected previous holder renamed back to ann, got %q", evicted.Pseudo)
	}
	promoted := mustEvent(t, ben.Events, EventIdentityUpdate)
	if promoted.Pseudo != AdminPseudo {
		t.Fatalf("expected ben to hold %s, got %q", AdminPseudo, promoted.Pseudo)
	}
}

func TestHubAdminNotInheritedBySharedIdentity(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("s3cret")}, nil)

	root := h.register("1", "root", "id-root", "en")
	say(root, "/admin s3cret")
	mustEvent(t, root.Events, EventIdentityUpdate)

	thief := h.connect("2")
	thief.Commands <- &Command{Kind: CommandRegister, Pseudo: "thief", Identity: "id-root", Locale: "en"}
	joined := mustEvent(t, thief.Events, EventJoinedRoom)
	if joined.Admin {
		t.Fatalf("second connection with the admin identity must not be admin")
	}

	say(thief, "/unban nobody")
	mustNotice(t, thief.Events, "Admin only.")

	// The original connection keeps its elevation.
	say(root, "/unban nobody")
	mustNotice(t, root.Events, "No active ban for 'nobody'.")
}

func TestHubSpamKickAppliedOnce(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	alice := h.register("1", "alice", "id-alice", "en")
	bob := h.register("2", "bob", "id-bob", "en")

	for i := 0; i < 7; i++ {
		say(alice, "buy now")
	}

	rest := mustClose(t, alice.Events)
	if n := countKind(rest, EventForceDisconnect); n != 1 {
		t.Fatalf("expected exactly one force_disconnect, got %d", n)
	}
	for _, ev := range rest {
		if ev.Kind == EventForceDisconnect && ev.Reason != "spam_kick" {
			t.Fatalf("unexpected penalty %q", ev.Reason)
		}
	}
	if !hasNotice(rest, "Your message rate is too high.") {
		t.Fatalf("expected a spam warning before the kick")
	}

	mustNotice(t, bob.Events, "alice was kicked for spam.")
	mustNotice(t, bob.Events, "alice left #general.")
}

func TestHubTranslationFanOut(t *testing.T) {
	tr := newPrefixTranslator()
	h := newHarness(t, Deps{Translator: tr}, nil)

	alice := h.register("1", "alice", "id-a", "en")
	bob := h.register("2", "bob", "id-b", "fr")
	carol := h.register("3", "carol", "id-c", "fr_FR")
	dave := h.register("4", "dave", "id-d", "en-US")

	say(alice, "hello")

	for _, c := range []*Client{bob, carol} {
		ev := mustEvent(t, c.Events, EventMessage)
		if ev.Message.Translated != "[fr] hello" || ev.Message.TargetLang != "fr" {
			t.Fatalf("unexpected delivery for %s: %+v", c.ID, ev.Message)
		}
	}
	for _, c := range []*Client{alice, dave} {
		ev := mustEvent(t, c.Events, EventMessage)
		if ev.Message.Translated != "hello" || ev.Message.TargetLang != "" {
			t.Fatalf("unexpected delivery for %s: %+v", c.ID, ev.Message)
		}
	}
	if n := tr.count("fr"); n != 1 {
		t.Fatalf("expected one translation per target locale, got %d", n)
	}

	say(alice, "see https://example.com/x")
	ev := mustEvent(t, bob.Events, EventMessage)
	if ev.Message.Translated != "see https://example.com/x" {
		t.Fatalf("links must pass through untranslated, got %q", ev.Message.Translated)
	}
	if n := tr.count("fr"); n != 1 {
		t.Fatalf("link message was translated")
	}
}

func TestHubPrivateRecordWithoutCipherIsLoggedAsError(t *testing.T) {
	var out syncBuffer
	logger := zerolog.New(&out)
	st := newMemStore()
	h := newHarness(t, Deps{Store: cipherlessStore{st}, Logger: &logger}, nil)

	alice := h.register("1", "alice", "id-a", "en")
	bob := h.register("2", "bob", "id-b", "en")
	alice.Commands <- &Command{Kind: CommandSendPrivate, Target: "bob", Text: "psst"}
	mustEvent(t, bob.Events, EventMessage)

	waitFor(t, "dropped private record logged", func() bool {
		return strings.Contains(out.String(), `"level":"error"`) &&
			strings.Contains(out.String(), "private record dropped")
	})
	if len(st.records(PrivateRoomID("id-a", "id-b"))) != 0 {
		t.Fatalf("private record must not be stored without a cipher")
	}
}

func TestHubPrivateRoomReapedWhenBothLeave(t *testing.T) {
	st := newMemStore()
	h := newHarness(t, Deps{Store: st}, nil)

	alice := h.register("1", "alice", "id-a", "en")
	bob := h.register("2", "bob", "id-b", "en")
	room := PrivateRoomID("id-a", "id-b")

	alice.Commands <- &Command{Kind: CommandSendPrivate, Target: "bob", Text: "psst"}
	got := mustEvent(t, bob.Events, EventMessage)
	if !got.Message.Private || got.Message.With != "alice" || got.Room != room {
		t.Fatalf("unexpected private delivery: room=%s %+v", got.Room, got.Message)
	}
	waitFor(t, "private record stored", func() bool { return len(st.records(room)) == 1 })

	h.hub.UnregisterClient(alice)
	mustClose(t, alice.Events)

	// Still alive while bob is connected.
	bob.Commands <- &Command{Kind: CommandSwitchPrivate, Room: room}
	switched := mustEvent(t, bob.Events, EventSwitchedRoom)
	if switched.Room != room {
		t.Fatalf("expected switch into %s, got %s", room, switched.Room)
	}
	history := mustEvent(t, bob.Events, EventRoomHistory)
	if len(history.History) != 1 || history.History[0].Translated != "psst" {
		t.Fatalf("unexpected private history: %+v", history.History)
	}

	h.hub.UnregisterClient(bob)
	mustClose(t, bob.Events)
	waitFor(t, "private history removed", func() bool { return st.wasRemoved(room) })
}

func TestHubPrivateRules(t *testing.T) {
	h := newHarness(t, Deps{}, nil)

	alice := h.register("1", "alice", "id-a", "en")
	anon := h.register("2", "anon", "", "en")
	h.register("3", "bob", "id-b", "en")

	alice.Commands <- &Command{Kind: CommandOpenPrivate, Target: "ghost"}
	mustNotice(t, alice.Events, "ghost is not connected.")

	alice.Commands <- &Command{Kind: CommandOpenPrivate, Target: "anon"}
	mustNotice(t, alice.Events, "Private messaging is unavailable (missing identity).")

	anon.Commands <- &Command{Kind: CommandSwitchPrivate, Room: PrivateRoomID("id-a", "id-b")}
	mustNotice(t, anon.Events, "This private room no longer exists.")

	alice.Commands <- &Command{Kind: CommandOpenPrivate, Target: "bob"}
	open := mustEvent(t, alice.Events, EventOpenPrivate)
	if open.Room != PrivateRoomID("id-a", "id-b") || open.With != "bob" {
		t.Fatalf("unexpected open_private_room: %+v", open)
	}

	anon.Commands <- &Command{Kind: CommandSwitchPrivate, Room: open.Room}
	mustNotice(t, anon.Events, "Access denied to this private room.")

	alice.Commands <- &Command{Kind: CommandSendPrivate, Target: "bob", Text: "/kick bob"}
	mustNotice(t, alice.Events, "Command /kick is not available in private messages.")

	alice.Commands <- &Command{Kind: CommandSendPrivate, Target: "bob", Text: "/help"}
	mustNotice(t, alice.Events, "Available in private messages: /code, /me, /help")
}

func TestHubCodeAndActionCommands(t *testing.T) {
	st := newMemStore()
	h := newHarness(t, Deps{Store: st}, nil)

	alice := h.register("1", "alice", "id-a", "en")
	bob := h.register("2", "bob", "id-b", "en")

	say(alice, "/code go\nfmt.Println(1)")
	code := mustEvent(t, bob.Events, EventCode)
	body, ok := code.Message.Record.Body.(store.Code)
	if !ok || body.Lang != "go" || body.Content != "fmt.Println(1)" {
		t.Fatalf("unexpected code record: %+v", code.Message.Record)
	}

	say(alice, "/me waves")
	action := mustEvent(t, bob.Events, EventAction)
	if action.Message.Record.Payload() != "waves" || action.Message.Record.Pseudo != "alice" {
		t.Fatalf("unexpected action record: %+v", action.Message.Record)
	}

	say(alice, "/dance")
	mustNotice(t, alice.Events, "Unknown command /dance. Type /help.")

	waitFor(t, "records stored", func() bool { return len(st.records("#general")) == 2 })
	kinds := []store.Kind{st.records("#general")[0].Kind(), st.records("#general")[1].Kind()}
	if !slices.Equal(kinds, []store.Kind{store.KindCode, store.KindAction}) {
		t.Fatalf("unexpected stored kinds %v", kinds)
	}
}

func TestHubRestoreRecoversHistoryRooms(t *testing.T) {
	st := newMemStore()
	st.dir["lounge"] = store.RoomMeta{CreatorID: "id-x", MessageCount: 3}
	st.historyRooms = []string{"#general", "orphan"}

	h := newHarness(t, Deps{Store: st}, nil)

	c := h.connect("1")
	list := mustEvent(t, c.Events, EventChannelList)
	for _, want := range []string{"#general", "lounge", "orphan"} {
		if !slices.Contains(list.Channels, want) {
			t.Fatalf("expected %s in %v", want, list.Channels)
		}
	}

	waitFor(t, "recovered directory saved", func() bool {
		dir, ok := st.lastSave()
		if !ok {
			return false
		}
		_, recovered := dir["orphan"]
		return recovered
	})
}

func TestHubSweepDeletesIdleRooms(t *testing.T) {
	st := newMemStore()
	h := newHarness(t, Deps{Store: st}, func(o *Options) {
		o.CleanupInterval = 20 * time.Millisecond
	})

	alice := h.register("1", "alice", "id-a", "en")
	alice.Commands <- &Command{Kind: CommandCreateRoom, Room: "den"}
	mustEvent(t, alice.Events, EventRoomCreated)

	alice.Commands <- &Command{Kind: CommandJoin, Room: "#general"}
	mustEvent(t, alice.Events, EventSwitchedRoom)

	h.clock.Advance(11 * time.Minute)
	ev := mustEvent(t, alice.Events, EventRoomDeleted)
	if ev.Room != "den" {
		t.Fatalf("expected den to be swept, got %s", ev.Room)
	}
	waitFor(t, "swept history removed", func() bool { return st.wasRemoved("den") })

	// The creator may create again once the old room is gone.
	alice.Commands <- &Command{Kind: CommandCreateRoom, Room: "den2"}
	mustEvent(t, alice.Events, EventRoomCreated)
}

func TestHubOperatorQueries(t *testing.T) {
	h := newHarness(t, Deps{}, nil)
	ctx := context.Background()

	alice := h.register("1", "alice", "id-a", "en")
	alice.Commands <- &Command{Kind: CommandCreateRoom, Room: "den"}
	mustEvent(t, alice.Events, EventRoomCreated)

	channels, err := h.hub.Channels(ctx)
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	var den *ChannelInfo
	for i := range channels {
		if channels[i].Name == "den" {
			den = &channels[i]
		}
	}
	if den == nil || den.Occupants != 1 || den.CreatorID != "id-a" || den.Official {
		t.Fatalf("unexpected channel info: %+v", channels)
	}

	if err := h.hub.DeleteRoom(ctx, "#general"); !errors.Is(err, ErrOfficialRoom) {
		t.Fatalf("expected ErrOfficialRoom, got %v", err)
	}
	if err := h.hub.DeleteRoom(ctx, "nope"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if err := h.hub.DeleteRoom(ctx, "den"); err != nil {
		t.Fatalf("delete den: %v", err)
	}
	switched := mustEvent(t, alice.Events, EventSwitchedRoom)
	if switched.Room != "#general" {
		t.Fatalf("expected occupants moved to #general, got %s", switched.Room)
	}
	mustNotice(t, alice.Events, "den was deleted by an operator.")

	h.stop()
	if _, err := h.hub.Bans(ctx); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped after shutdown, got %v", err)
	}
}

func TestHubKillCommand(t *testing.T) {
	h := newHarness(t, Deps{Keys: staticKeys("k")}, nil)

	root := h.register("1", "root", "id-root", "en")
	bob := h.register("2", "bob", "id-b", "en")

	bob.Commands <- &Command{Kind: CommandCreateRoom, Room: "den"}
	mustEvent(t, bob.Events, EventRoomCreated)

	say(root, "/kill den")
	mustNotice(t, root.Events, "Admin only.")

	say(root, "/admin k")
	mustNotice(t, root.Events, "Admin mode enabled.")

	say(root, "/kill #general")
	mustNotice(t, root.Events, "Cannot delete official channel.")
	say(root, "/kill nowhere")
	mustNotice(t, root.Events, "Channel nowhere not found.")

	say(root, "/kill den")
	deleted := mustEvent(t, bob.Events, EventRoomDeleted)
	if deleted.Room != "den" {
		t.Fatalf("unexpected room_deleted: %+v", deleted)
	}
	mustNotice(t, root.Events, "den was deleted by an admin.")
}
