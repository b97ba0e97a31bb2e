package core

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/lexyo-server/internal/abuse"
	"github.com/vovakirdan/lexyo-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNotice waits for a notice with exactly the given text.
func mustNotice(t *testing.T, ch <-chan *Event, text string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && (ev.Kind == EventNotice || ev.Kind == EventPseudoTaken) && ev.Text == text {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected notice %q not received", text)
	return nil
}

// mustClose drains ch until the hub closes it and returns what was left.
func mustClose(t *testing.T, ch <-chan *Event) []*Event {
	t.Helper()

	var rest []*Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return rest
			}
			rest = append(rest, ev)
		case <-timeout:
			t.Fatalf("event channel not closed")
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// cipherlessStore refuses private records the way a store without a cipher does.
type cipherlessStore struct {
	*memStore
}

func (c cipherlessStore) Append(ctx context.Context, room string, rec store.Record) error {
	if store.IsPrivate(room) {
		return store.ErrNoCipher
	}
	return c.memStore.Append(ctx, room, rec)
}

// syncBuffer collects log output written from the persister goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu           sync.Mutex
	dir          map[string]store.RoomMeta
	history      map[string][]store.Record
	historyRooms []string
	removed      []string
	saves        []map[string]store.RoomMeta
}

func newMemStore() *memStore {
	return &memStore{
		dir:     make(map[string]store.RoomMeta),
		history: make(map[string][]store.Record),
	}
}

func (m *memStore) Append(_ context.Context, room string, rec store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[room] = append(m.history[room], rec)
	return nil
}

func (m *memStore) History(_ context.Context, room string, limit int) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.history[room]
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return slices.Clone(records), nil
}

func (m *memStore) Remove(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, room)
	m.removed = append(m.removed, room)
	return nil
}

func (m *memStore) PublicRooms(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.historyRooms), nil
}

func (m *memStore) LoadDirectory(context.Context) (map[string]store.RoomMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]store.RoomMeta, len(m.dir))
	for k, v := range m.dir {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveDirectory(_ context.Context, dir map[string]store.RoomMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, dir)
	return nil
}

func (m *memStore) wasRemoved(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.removed, room)
}

func (m *memStore) records(room string) []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history[room])
}

func (m *memStore) lastSave() (map[string]store.RoomMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil, false
	}
	return m.saves[len(m.saves)-1], true
}

type staticKeys string

func (k staticKeys) Check(candidate string) bool { return candidate == string(k) }

type verifierFunc func(ctx context.Context, token string) bool

func (f verifierFunc) Verify(ctx context.Context, token string) bool { return f(ctx, token) }

// prefixTranslator tags text with the target locale and counts calls per target.
type prefixTranslator struct {
	mu    sync.Mutex
	calls map[string]int
}

func newPrefixTranslator() *prefixTranslator {
	return &prefixTranslator{calls: make(map[string]int)}
}

func (p *prefixTranslator) Translate(_ context.Context, text, _, tgt string) string {
	p.mu.Lock()
	p.calls[tgt]++
	p.mu.Unlock()
	return fmt.Sprintf("[%s] %s", tgt, text)
}

func (p *prefixTranslator) TranslateBatch(ctx context.Context, texts []string, src, tgt string) []string {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = p.Translate(ctx, text, src, tgt)
	}
	return out
}

func (p *prefixTranslator) count(tgt string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[tgt]
}

type harness struct {
	t     *testing.T
	hub   *ChatHub
	clock *fakeClock
	stop  func()
}

func newHarness(t *testing.T, deps Deps, tweak func(*Options)) *harness {
	t.Helper()

	opts := DefaultOptions()
	opts.MinMessageDelay = 0
	opts.CleanupInterval = time.Hour
	opts.SaveDebounce = 10 * time.Millisecond
	if tweak != nil {
		tweak(&opts)
	}
	if deps.Limiter == nil {
		deps.Limiter = abuse.NewLimiter(time.Second, 1000, 1000)
	}

	clock := newFakeClock()
	hub := NewHub(opts, deps, WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)

	return &harness{t: t, hub: hub, clock: clock, stop: stop}
}

func (h *harness) connect(id string) *Client {
	c := NewClient(id, "10.0.0."+id)
	h.hub.RegisterClient(c)
	return c
}

func (h *harness) register(id, pseudo, identity, locale string) *Client {
	h.t.Helper()
	c := h.connect(id)
	c.Commands <- &Command{Kind: CommandRegister, Pseudo: pseudo, Identity: identity, Locale: locale}
	mustEvent(h.t, c.Events, EventJoinedRoom)
	return c
}

func say(c *Client, text string) {
	c.Commands <- &Command{Kind: CommandSendMessage, Text: text}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev != nil && ev.Kind == kind {
			n++
		}
	}
	return n
}

func hasNotice(events []*Event, prefix string) bool {
	for _, ev := range events {
		if ev != nil && ev.Kind == EventNotice && strings.HasPrefix(ev.Text, prefix) {
			return true
		}
	}
	return false
}
