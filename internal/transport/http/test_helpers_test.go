package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/auth"
	"github.com/vovakirdan/lexyo-server/internal/config"
	"github.com/vovakirdan/lexyo-server/internal/core"
	"github.com/vovakirdan/lexyo-server/internal/proto"
)

const testAdminKey = "let-me-in"

type testServer struct {
	ts     *httptest.Server
	tokens *auth.Service
}

// startTestServer runs a hub and the router. An empty secret disables the operator API.
func startTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	disabledLogger := zerolog.Nop()

	opts := core.DefaultOptions()
	opts.MinMessageDelay = 0
	hub := core.NewHub(opts, core.Deps{
		Keys:   auth.NewKeyVerifier(testAdminKey, ""),
		Logger: &disabledLogger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second

	tokens := auth.NewService(&auth.JWTConfig{
		Secret: []byte(secret),
		Issuer: "lexyo",
		TTL:    time.Minute,
	})

	server := NewServer(hub, tokens, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, tokens: tokens}
}

func (s *testServer) dial(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// do issues a request and returns the status and body.
func (s *testServer) do(t *testing.T, method, path, token string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, s.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

// wireOutbound mirrors proto.Outbound with raw data for decoding in tests.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until one matches; "error" matches error frames.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) wireOutbound {
	t.Helper()

	for {
		var out wireOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event == event || (event == proto.OutboundTypeError && out.Type == proto.OutboundTypeError) {
			return out
		}
	}
}

func register(ctx context.Context, t *testing.T, conn *websocket.Conn, pseudo, identity string) proto.JoinedRoom {
	t.Helper()

	send(ctx, t, conn, proto.InboundTypeRegister, proto.RegisterData{Pseudo: pseudo, Lang: "en", UserID: identity})
	out := readUntil(ctx, t, conn, proto.EventJoinedRoom)

	var joined proto.JoinedRoom
	if err := json.Unmarshal(out.Data, &joined); err != nil {
		t.Fatalf("decode joined_room: %v", err)
	}
	return joined
}
