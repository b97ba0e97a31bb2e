package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/abuse"
	"github.com/vovakirdan/lexyo-server/internal/store"
)

// Hub is the engine surface used by the transport and app layers.
type Hub interface {
	Run(ctx context.Context) error
	RegisterClient(c *Client)
	UnregisterClient(c *Client)

	Channels(ctx context.Context) ([]ChannelInfo, error)
	Bans(ctx context.Context) ([]Ban, error)
	Unban(ctx context.Context, query string) (int, error)
	DeleteRoom(ctx context.Context, name string) error
}

// Verifier checks a registration challenge token.
type Verifier interface {
	Verify(ctx context.Context, token string) bool
}

// Translator localizes text. Implementations never fail; they return the
// original text instead.
type Translator interface {
	Translate(ctx context.Context, text, src, tgt string) string
	TranslateBatch(ctx context.Context, texts []string, src, tgt string) []string
}

// KeyChecker validates /admin keys.
type KeyChecker interface {
	Check(candidate string) bool
}

// Options are the engine tunables.
type Options struct {
	DefaultRoom      string
	OfficialRooms    []string
	HistoryLimit     int
	RoomTTL          time.Duration
	CleanupInterval  time.Duration
	MinMessageDelay  time.Duration
	MaxMessageLength int
	SaveDebounce     time.Duration
	TranslateHistory bool
	// KickBlock is how long a moderator kick without duration blocks rejoining.
	KickBlock time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		DefaultRoom:      "#general",
		OfficialRooms:    []string{"#general"},
		HistoryLimit:     100,
		RoomTTL:          10 * time.Minute,
		CleanupInterval:  time.Minute,
		MinMessageDelay:  800 * time.Millisecond,
		MaxMessageLength: 1000,
		SaveDebounce:     time.Second,
		KickBlock:        5 * time.Minute,
	}
}

// Deps are the collaborators of the engine. Every field is optional: a nil
// Store keeps state in memory only, a nil Captcha lets everyone through, a nil
// Translator delivers originals and a nil Keys refuses every /admin attempt.
type Deps struct {
	Store      store.Store
	Captcha    Verifier
	Translator Translator
	Keys       KeyChecker
	Limiter    *abuse.Limiter
	Guard      *abuse.Guard
	Logger     *zerolog.Logger
}

// HubOption customizes a ChatHub.
type HubOption func(*ChatHub)

// WithClock replaces the time source.
func WithClock(now func() time.Time) HubOption {
	return func(h *ChatHub) { h.now = now }
}

type envelope struct {
	client *Client
	cmd    *Command
}

// ChatHub owns the registry. All state changes happen on the goroutine
// running Run; slow work is pushed out with await and resumed there.
type ChatHub struct {
	opts       Options
	reg        *Registry
	store      store.Store
	captcha    Verifier
	translator Translator
	keys       KeyChecker
	limiter    *abuse.Limiter
	guard      *abuse.Guard
	log        *zerolog.Logger
	now        func() time.Time

	clients     map[string]*Client
	registering map[string]struct{}

	register   chan *Client
	unregister chan *Client
	inbox      chan envelope
	jobs       chan func()
	done       chan struct{}

	disk      *persister
	saveTimer *time.Timer

	ctx     context.Context
	pending sync.WaitGroup
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options, deps Deps, options ...HubOption) *ChatHub {
	defaults := DefaultOptions()
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = defaults.DefaultRoom
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaults.HistoryLimit
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaults.RoomTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaults.CleanupInterval
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaults.MaxMessageLength
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = defaults.SaveDebounce
	}
	if opts.KickBlock <= 0 {
		opts.KickBlock = defaults.KickBlock
	}

	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = abuse.NewLimiter(10*time.Second, 40, 25)
	}
	guard := deps.Guard
	if guard == nil {
		guard = abuse.NewGuard(time.Minute, 5, 5*time.Minute)
	}

	h := &ChatHub{
		opts:        opts,
		store:       deps.Store,
		captcha:     deps.Captcha,
		translator:  deps.Translator,
		keys:        deps.Keys,
		limiter:     limiter,
		guard:       guard,
		log:         logger,
		now:         time.Now,
		clients:     make(map[string]*Client),
		registering: make(map[string]struct{}),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		inbox:       make(chan envelope, 256),
		jobs:        make(chan func(), 256),
		done:        make(chan struct{}),
		disk:        newPersister(logger),
		ctx:         context.Background(),
	}
	for _, opt := range options {
		opt(h)
	}
	h.reg = NewRegistry(opts.OfficialRooms, opts.DefaultRoom, h.now())
	return h
}

// Run processes clients, commands and timers until ctx is cancelled. Pending
// persistence is drained before it returns.
func (h *ChatHub) Run(ctx context.Context) error {
	h.ctx = ctx
	diskCtx := context.WithoutCancel(ctx)
	go h.disk.run(diskCtx)

	h.restore(ctx)

	ticker := time.NewTicker(h.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.dropClient(c)
		case env := <-h.inbox:
			h.handle(env.client, env.cmd)
		case job := <-h.jobs:
			h.safely("job", nil, job)
		case <-ticker.C:
			h.safely("sweep", nil, h.sweep)
		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

func (h *ChatHub) shutdown() {
	if h.saveTimer != nil {
		h.saveTimer.Stop()
		h.saveTimer = nil
		h.saveDirectory()
	}
	close(h.done)
	h.pending.Wait()
	h.disk.close()
	<-h.disk.finished
	h.log.Info().Msg("hub stopped")
}

// RegisterClient attaches a connection to the hub.
func (h *ChatHub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches a connection and runs the disconnect cascade.
// Calling it for an already dropped client is a no-op.
func (h *ChatHub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *ChatHub) addClient(c *Client) {
	if _, exists := h.clients[c.ID]; exists {
		h.log.Warn().Str("conn_id", c.ID).Msg("duplicate client id")
		return
	}
	h.clients[c.ID] = c
	go h.pump(c)
	h.send(c, &Event{Kind: EventChannelList, Channels: h.reg.Channels()})
	h.log.Debug().Str("conn_id", c.ID).Str("addr", c.Addr).Msg("client connected")
}

// pump forwards client commands to the hub inbox until Commands is closed.
func (h *ChatHub) pump(c *Client) {
	for cmd := range c.Commands {
		if cmd == nil {
			continue
		}
		select {
		case h.inbox <- envelope{client: c, cmd: cmd}:
		case <-h.done:
			return
		}
	}
}

// dropClient runs the disconnect cascade and closes the client's event stream.
func (h *ChatHub) dropClient(c *Client) {
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}
	h.safely("disconnect", c, func() { h.handleDisconnect(c) })
	delete(h.clients, c.ID)
	delete(h.registering, c.ID)
	c.closed = true
	close(c.Events)
}

func (h *ChatHub) handle(c *Client, cmd *Command) {
	if current, ok := h.clients[c.ID]; !ok || current != c {
		return
	}
	h.safely(cmd.Kind.String(), c, func() {
		switch cmd.Kind {
		case CommandRegister:
			h.handleRegister(c, cmd)
		case CommandJoin:
			h.withSession(c, func(s *Session) { h.handleJoin(s, cmd) })
		case CommandCreateRoom:
			h.withSession(c, func(s *Session) { h.handleCreateRoom(s, cmd) })
		case CommandSendMessage:
			h.withSession(c, func(s *Session) { h.handleSendMessage(s, cmd) })
		case CommandOpenPrivate:
			h.withSession(c, func(s *Session) { h.handleOpenPrivate(s, cmd) })
		case CommandSwitchPrivate:
			h.withSession(c, func(s *Session) { h.handleSwitchPrivate(s, cmd) })
		case CommandSendPrivate:
			h.withSession(c, func(s *Session) { h.handleSendPrivate(s, cmd) })
		default:
			h.send(c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
		}
	})
}

func (h *ChatHub) withSession(c *Client, fn func(*Session)) {
	s, ok := h.reg.Session(c.ID)
	if !ok {
		h.send(c, &Event{Kind: EventError, Error: coreError(ErrCodeNotRegistered, "register first")})
		return
	}
	fn(s)
}

// safely runs fn at the handler boundary: panics are logged, never propagated.
func (h *ChatHub) safely(what string, c *Client, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ev := h.log.Error().Interface("panic", r).Str("command", what)
			if c != nil {
				ev = ev.Str("conn_id", c.ID)
				if s, ok := h.reg.Session(c.ID); ok {
					ev = ev.Str("pseudo", s.Pseudo).Str("room", s.Room)
				}
			}
			ev.Msg("handler panic recovered")
		}
	}()
	fn()
}

// alive reports whether s is still registered on its connection. Every resume
// after a suspension checks it before touching s.
func (h *ChatHub) alive(s *Session) bool {
	current, ok := h.reg.Session(s.ConnID)
	return ok && current == s
}

// await runs work off the hub goroutine and resumes on it with the result.
func await[T any](h *ChatHub, work func(ctx context.Context) T, resume func(T)) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		v := work(h.ctx)
		select {
		case h.jobs <- func() { resume(v) }:
		case <-h.done:
		}
	}()
}

// awaitDisk runs work on the persister, after every write queued before it,
// and resumes on the hub goroutine.
func awaitDisk[T any](h *ChatHub, work func(ctx context.Context) T, resume func(T)) {
	h.pending.Add(1)
	queued := h.disk.submit("read", func(ctx context.Context) {
		v := work(ctx)
		go func() {
			defer h.pending.Done()
			select {
			case h.jobs <- func() { resume(v) }:
			case <-h.done:
			}
		}()
	})
	if !queued {
		h.pending.Done()
	}
}

// Emission

func (h *ChatHub) send(c *Client, ev *Event) {
	if c == nil || c.closed {
		return
	}
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("conn_id", c.ID).Int("kind", int(ev.Kind)).Msg("dropping event for slow client")
	}
}

func (h *ChatHub) emit(s *Session, ev *Event) {
	h.send(s.client, ev)
}

func (h *ChatHub) toRoom(room string, ev *Event) {
	for _, s := range h.reg.Occupants(room) {
		h.emit(s, ev)
	}
}

func (h *ChatHub) toAll(ev *Event) {
	for _, c := range h.clients {
		h.send(c, ev)
	}
}

func (h *ChatHub) notice(s *Session, text string) {
	h.emit(s, &Event{Kind: EventNotice, Room: s.Room, Text: text})
}

func (h *ChatHub) noticeRoom(room, text string) {
	if room == "" {
		return
	}
	h.toRoom(room, &Event{Kind: EventNotice, Room: room, Text: text})
}

func (h *ChatHub) sendRoomUsers(room string) {
	if room == "" {
		return
	}
	occupants := h.reg.Occupants(room)
	users := make([]Occupant, 0, len(occupants))
	pr, public := h.reg.Room(room)
	for _, s := range occupants {
		users = append(users, Occupant{
			Identity:  s.Key(),
			Pseudo:    s.Pseudo,
			Locale:    s.Locale,
			Color:     s.Color,
			Admin:     s.Admin,
			Moderator: public && pr.IsModerator(s.Key()),
		})
	}
	ev := &Event{Kind: EventRoomUsers, Room: room, Users: users}
	for _, s := range occupants {
		h.emit(s, ev)
	}
}

func (h *ChatHub) broadcastCounts() {
	h.toAll(&Event{Kind: EventRoomCounts, Counts: h.reg.Counts()})
}

func (h *ChatHub) broadcastChannels() {
	h.toAll(&Event{Kind: EventChannelList, Channels: h.reg.Channels()})
}

// Operator queries

// call runs fn on the hub goroutine and waits for it.
func (h *ChatHub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}
	select {
	case h.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// Channels lists public rooms with live occupant counts.
func (h *ChatHub) Channels(ctx context.Context) ([]ChannelInfo, error) {
	var out []ChannelInfo
	err := h.call(ctx, func() {
		counts := h.reg.Counts()
		for _, name := range h.reg.Channels() {
			room, ok := h.reg.Room(name)
			if !ok {
				continue
			}
			out = append(out, ChannelInfo{
				Name:         name,
				Official:     room.Official,
				CreatorID:    room.CreatorID,
				Occupants:    counts[name],
				MessageCount: room.MessageCount,
				LastActivity: room.LastActivity,
			})
		}
	})
	return out, err
}

// Bans lists active bans.
func (h *ChatHub) Bans(ctx context.Context) ([]Ban, error) {
	var out []Ban
	err := h.call(ctx, func() { out = h.reg.Bans(h.now()) })
	return out, err
}

// Unban removes bans matching query and returns how many were removed.
func (h *ChatHub) Unban(ctx context.Context, query string) (int, error) {
	var n int
	err := h.call(ctx, func() {
		removed := h.reg.Unban(query)
		n = len(removed)
		if n > 0 {
			h.log.Info().Str("query", query).Int("removed", n).Msg("operator unban")
		}
	})
	return n, err
}

// DeleteRoom deletes a non-official public room the way /kill does.
func (h *ChatHub) DeleteRoom(ctx context.Context, name string) error {
	var result error
	err := h.call(ctx, func() { result = h.killRoom(name, "an operator") })
	if err != nil {
		return err
	}
	return result
}
