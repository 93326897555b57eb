package ratings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Schema is applied by EnsureSchema. Ratings are written by an external
// rating service; the arena only reads them.
const Schema = `
CREATE TABLE IF NOT EXISTS player_ratings (
    user_id    TEXT PRIMARY KEY,
    rating     INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenDB opens a postgres pool with the pool settings used across the service.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresStore reads player ratings from player_ratings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create player_ratings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Rating(ctx context.Context, userID string) (int, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, nil
	}
	const query = `
		SELECT rating
		FROM player_ratings
		WHERE user_id = $1
		LIMIT 1`

	var rating int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&rating)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select player rating: %w", err)
	}
	return rating, true, nil
}
