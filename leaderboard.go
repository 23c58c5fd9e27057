/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Score is one player's best daily result.
type Score struct {
	ID          string    `json:"id"`
	Day         string    `json:"day"`
	Player      string    `json:"player"`
	Steps       int       `json:"steps"`
	Duration    float64   `json:"duration"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Leaderboard keeps the best score per player per day.
type Leaderboard struct {
	db *sql.DB
}

// openLeaderboard opens (or creates) the sqlite database at path. An empty
// path keeps everything in memory.
func openLeaderboard(path string) (*Leaderboard, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == "" {
		dsn = "file::memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening leaderboard: %w", err)
	}

	// Every connection to :memory: is its own database.
	if path == "" {
		db.SetMaxOpenConns(1)
	}

	l := &Leaderboard{db: db}

	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return l, nil
}

func (l *Leaderboard) Close() error {
	return l.db.Close()
}

func (l *Leaderboard) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(strings.TrimPrefix(name, "migrations/"), "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := l.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Submit records a score, keeping it only if it beats the player's earlier
// result for the same day. The comparison happens inside a single upsert, so
// concurrent submissions cannot overwrite a better score.
func (l *Leaderboard) Submit(ctx context.Context, day, player string, steps int, duration time.Duration) error {
	player = strings.TrimSpace(player)
	if player == "" || day == "" || steps < 1 || duration < 0 {
		return fmt.Errorf("score: %w", ErrAmbiguousInput)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO daily_scores (id, day, player, player_key, steps, duration_ms, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, player_key) DO UPDATE SET
			player = excluded.player,
			steps = excluded.steps,
			duration_ms = excluded.duration_ms,
			submitted_at = excluded.submitted_at
		WHERE excluded.steps < daily_scores.steps
			OR (excluded.steps = daily_scores.steps AND excluded.duration_ms < daily_scores.duration_ms)
	`, uuid.NewString(), day, player, normalizeName(player), steps, duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving score: %w", err)
	}

	return nil
}

// Top returns the best scores of a day, fewest steps first, then fastest.
func (l *Leaderboard) Top(ctx context.Context, day string, limit int) ([]Score, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, day, player, steps, duration_ms, submitted_at
		FROM daily_scores
		WHERE day = ?
		ORDER BY steps ASC, duration_ms ASC, submitted_at ASC
		LIMIT ?
	`, day, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	scores := []Score{}
	for rows.Next() {
		var (
			s          Score
			durationMS int64
		)
		if err := rows.Scan(&s.ID, &s.Day, &s.Player, &s.Steps, &durationMS, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		s.Duration = (time.Duration(durationMS) * time.Millisecond).Seconds()
		scores = append(scores, s)
	}

	return scores, rows.Err()
}
