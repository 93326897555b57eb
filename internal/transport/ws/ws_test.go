package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/dispatch"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	connected []presence.Identity
	added     []string

	disconnected chan presence.Identity
	rooms        []arenadto.Session
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{disconnected: make(chan presence.Identity, 4)}
}

func (f *fakeDispatcher) Connect(_ context.Context, conn presence.Conn, id presence.Identity) {
	f.mu.Lock()
	f.connected = append(f.connected, id)
	f.mu.Unlock()
	_ = conn.Send(arenadto.Event{Type: "hello", Payload: id.UserID})
}

func (f *fakeDispatcher) Handle(_ context.Context, conn presence.Conn, _ presence.Identity, env arenadto.Envelope) {
	_ = conn.Send(arenadto.Event{Type: "echo_" + env.Type, Payload: env.Payload})
}

func (f *fakeDispatcher) Disconnect(_ context.Context, _ presence.Conn, id presence.Identity) {
	f.disconnected <- id
}

func (f *fakeDispatcher) ListRooms(context.Context) ([]arenadto.Session, error) {
	return f.rooms, nil
}

func (f *fakeDispatcher) AddTime(_ context.Context, id string, side clock.Color, seconds int) (arenadto.Clock, error) {
	if id != "room-1" {
		return arenadto.Clock{}, session.ErrNotFound
	}
	f.mu.Lock()
	f.added = append(f.added, string(side))
	f.mu.Unlock()
	return arenadto.Clock{RemainingWhiteMs: 180_000 + int64(seconds)*1000, RemainingBlackMs: 180_000, ActiveSide: "white", Running: true}, nil
}

func (f *fakeDispatcher) Stats(context.Context) (dispatch.Stats, error) {
	return dispatch.Stats{Online: 2, Sessions: 1}, nil
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newServer(t *testing.T, d *fakeDispatcher, adminToken string) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	v, err := auth.NewVerifier("test-secret", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Verifier:       v,
		Dispatcher:     d,
		AllowedOrigins: []string{"https://app.example"},
		AdminToken:     adminToken,
		Handler:        HandlerConfig{PingInterval: -1},
	}))
	t.Cleanup(srv.Close)
	return srv, v
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	if err := wsjson.Read(ctx, c, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestWebsocketAuthenticatedRoundTrip(t *testing.T) {
	d := newFakeDispatcher()
	srv, v := newServer(t, d, "")
	tok, err := v.Issue("u1", "Alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c := dial(t, srv, tok)

	if f := readFrame(t, c); f.Type != "hello" || string(f.Payload) != `"u1"` {
		t.Fatalf("hello frame = %s %s", f.Type, f.Payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, map[string]any{"type": "list_rooms"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, c); f.Type != "echo_list_rooms" {
		t.Fatalf("echo frame = %s", f.Type)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	select {
	case id := <-d.disconnected:
		if id.UserID != "u1" || id.DisplayName != "Alice" {
			t.Fatalf("disconnect identity = %+v", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("disconnect not reported")
	}
}

func TestWebsocketWithoutTokenStaysOpen(t *testing.T) {
	d := newFakeDispatcher()
	srv, _ := newServer(t, d, "")
	c := dial(t, srv, "")
	defer c.Close(websocket.StatusNormalClosure, "")

	if f := readFrame(t, c); f.Type != "hello" || string(f.Payload) != `""` {
		t.Fatalf("hello frame = %s %s", f.Type, f.Payload)
	}
	d.mu.Lock()
	got := d.connected[0]
	d.mu.Unlock()
	if !got.Empty() {
		t.Fatalf("unauthenticated identity = %+v", got)
	}
}

func TestWebsocketMalformedFrameAnswersBadRequest(t *testing.T) {
	d := newFakeDispatcher()
	srv, v := newServer(t, d, "")
	tok, _ := v.Issue("u1", "", time.Hour)
	c := dial(t, srv, tok)
	defer c.Close(websocket.StatusNormalClosure, "")
	readFrame(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, c)
	var de arenadto.DomainError
	_ = json.Unmarshal(f.Payload, &de)
	if f.Type != arenadto.EvError || de.Code != arenadto.CodeBadRequest {
		t.Fatalf("frame = %s %+v", f.Type, de)
	}

	// the connection survives the bad frame
	if err := wsjson.Write(ctx, c, map[string]any{"type": "chat", "payload": map[string]string{"text": "hi"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, c); f.Type != "echo_chat" {
		t.Fatalf("frame after error = %s", f.Type)
	}
}

func TestHealthzAndRooms(t *testing.T) {
	d := newFakeDispatcher()
	d.rooms = []arenadto.Session{{ID: "room-7", Status: "waiting", TimeControl: "blitz"}}
	srv, _ := newServer(t, d, "")

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health struct {
		Status string         `json:"status"`
		Stats  dispatch.Stats `json:"stats"`
	}
	_ = json.NewDecoder(res.Body).Decode(&health)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || health.Status != "ok" || health.Stats.Online != 2 {
		t.Fatalf("healthz = %d %+v", res.StatusCode, health)
	}

	res, err = http.Get(srv.URL + "/rooms")
	if err != nil {
		t.Fatalf("GET /rooms: %v", err)
	}
	var rooms []arenadto.Session
	_ = json.NewDecoder(res.Body).Decode(&rooms)
	res.Body.Close()
	if len(rooms) != 1 || rooms[0].ID != "room-7" {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func postClock(t *testing.T, srv *httptest.Server, id, token, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/sessions/"+id+"/clock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestAdminAddTime(t *testing.T) {
	d := newFakeDispatcher()
	srv, _ := newServer(t, d, "admin-token")

	cases := []struct {
		name   string
		id     string
		token  string
		body   string
		status int
	}{
		{"no token", "room-1", "", `{"side":"white","seconds":15}`, http.StatusUnauthorized},
		{"wrong token", "room-1", "nope", `{"side":"white","seconds":15}`, http.StatusUnauthorized},
		{"bad side", "room-1", "admin-token", `{"side":"green","seconds":15}`, http.StatusBadRequest},
		{"bad body", "room-1", "admin-token", `{`, http.StatusBadRequest},
		{"unknown session", "room-9", "admin-token", `{"side":"black","seconds":15}`, http.StatusNotFound},
		{"ok", "room-1", "admin-token", `{"side":"White","seconds":15}`, http.StatusOK},
	}
	for _, tc := range cases {
		res := postClock(t, srv, tc.id, tc.token, tc.body)
		if res.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, res.StatusCode, tc.status)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.added) != 1 || d.added[0] != "white" {
		t.Fatalf("added = %v", d.added)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	srv, _ := newServer(t, newFakeDispatcher(), "")
	if res := postClock(t, srv, "room-1", "anything", `{"side":"white","seconds":1}`); res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newServer(t, newFakeDispatcher(), "")
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/rooms", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req.Header.Set("Origin", "https://evil.example")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestSendToStalledPeerReturnsPromptly(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- c
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.CloseNow()

	// no writer loop and a client that never reads: the buffer fills on the second send
	conn := newConn("stalled", <-accepted, 1, time.Second, -1)
	if err := conn.Send(arenadto.Event{Type: "first"}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	start := time.Now()
	if err := conn.Send(arenadto.Event{Type: "second"}); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("second Send = %v, want ErrSlowConsumer", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Send blocked for %v", elapsed)
	}
	if err := conn.Send(arenadto.Event{Type: "third"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close = %v, want ErrClosed", err)
	}
}
