package arenabuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/outcome"
)

func TestNewWithRedisOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.AppConfig{
		JWTSecret:       "s3cret",
		RedisURL:        "redis://" + mr.Addr() + "/0",
		DefaultRating:   1200,
		RatingTolerance: 150,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := New(ctx, ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Close()

	done := make(chan struct{})
	go func() {
		deps.Dispatcher.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	srv := httptest.NewServer(deps.Handler)
	defer srv.Close()
	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", res.StatusCode)
	}
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), context.Background(), &config.AppConfig{JWTSecret: "s3cret", RedisURL: "redis://" + addr})
	if err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestRedactURL(t *testing.T) {
	if got := RedactURL("postgres://arena:pw@db:5432/arena"); got != "postgres://***@db:5432/arena" {
		t.Fatalf("RedactURL = %q", got)
	}
	if got := RedactURL("nats://localhost:4222"); got != "nats://localhost:4222" {
		t.Fatalf("RedactURL = %q", got)
	}
}

func TestWebhookSinkCarriesConfiguredToken(t *testing.T) {
	var (
		mu    sync.Mutex
		auth  string
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := newWebhookSink(&config.AppConfig{
		OutcomeWebhookURL:     srv.URL,
		OutcomeWebhookToken:   "hook-secret",
		OutcomeWebhookTimeout: 2 * time.Second,
		OutcomeWebhookRetries: 1,
	})
	if err := sink.Publish(context.Background(), outcome.Record{SessionID: "s1"}); err == nil {
		t.Fatalf("expected 503 to surface")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("calls = %d, want a single attempt", calls)
	}
	if auth != "Bearer hook-secret" {
		t.Fatalf("Authorization = %q", auth)
	}
}
