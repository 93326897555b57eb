package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const httpTimeout = 5 * time.Second

type RouterConfig struct {
	Verifier       Verifier
	Dispatcher     Dispatcher
	AllowedOrigins []string
	// AdminToken enables /admin routes when non-empty.
	AdminToken string
	Handler    HandlerConfig
}

type addTimeRequest struct {
	Side    string `json:"side"`
	Seconds int    `json:"seconds"`
}

// NewRouter wires the websocket endpoint and the small HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	hcfg := cfg.Handler
	hcfg.AllowedOrigins = cfg.AllowedOrigins

	r.Handle("/ws", NewHandler(cfg.Verifier, cfg.Dispatcher, hcfg)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz(cfg.Dispatcher)).Methods(http.MethodGet)
	r.HandleFunc("/rooms", listRooms(cfg.Dispatcher)).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(requireAdmin(cfg.AdminToken))
	admin.HandleFunc("/sessions/{id}/clock", addTime(cfg.Dispatcher)).Methods(http.MethodPost)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func healthz(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), httpTimeout)
		defer cancel()
		st, err := d.Stats(ctx)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": st})
	}
}

func listRooms(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), httpTimeout)
		defer cancel()
		rooms, err := d.ListRooms(ctx)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func requireAdmin(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusNotFound, "admin disabled")
				return
			}
			got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addTime(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addTimeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		side := clock.Color(strings.ToLower(strings.TrimSpace(req.Side)))
		if !side.Valid() {
			writeError(w, http.StatusBadRequest, "side must be white or black")
			return
		}
		id := mux.Vars(r)["id"]
		ctx, cancel := context.WithTimeout(r.Context(), httpTimeout)
		defer cancel()
		reading, err := d.AddTime(ctx, id, side, req.Seconds)
		switch {
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
			return
		case err != nil:
			obslog.L().Warn("admin_add_time_failed", zap.String("session_id", id), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
			return
		}
		writeJSON(w, http.StatusOK, reading)
	}
}
