package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/i474232898/aeroimpact/internal/impact"
)

// SQLiteStore persists impacts in a single SQLite table. The full impact is
// kept as JSON next to the columns used for lookup and statistics.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	now        func() time.Time
	newID      func() string
}

// OpenSQLite opens (or creates) the database at path. Call InitSchema before use.
func OpenSQLite(path string, maxHistory int) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &SQLiteStore{
		db:         db,
		maxHistory: maxHistory,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the impacts table exists.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS impacts (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			flight_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			impact_score REAL NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_impacts_flight ON impacts(flight_id);`,
		`CREATE INDEX IF NOT EXISTS idx_impacts_severity ON impacts(severity);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Save inserts imp, or replaces the row with the same id.
func (s *SQLiteStore) Save(ctx context.Context, imp impact.Impact) (impact.Impact, error) {
	if imp.ID == "" {
		imp.ID = s.newID()
	}
	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = s.now().UTC()
	}

	payload, err := json.Marshal(imp)
	if err != nil {
		return impact.Impact{}, fmt.Errorf("encode impact: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO impacts (id, flight_id, severity, impact_score, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			flight_id = excluded.flight_id,
			severity = excluded.severity,
			impact_score = excluded.impact_score,
			payload = excluded.payload,
			created_at = excluded.created_at`,
		imp.ID, imp.FlightID, string(imp.Severity), imp.ImpactScore,
		string(payload), imp.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return impact.Impact{}, fmt.Errorf("insert impact: %w", err)
	}

	if s.maxHistory > 0 {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM impacts WHERE seq NOT IN (
				SELECT seq FROM impacts ORDER BY seq DESC LIMIT ?
			)`, s.maxHistory); err != nil {
			return impact.Impact{}, fmt.Errorf("apply retention: %w", err)
		}
	}

	return imp, nil
}

// Get returns the impact with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (impact.Impact, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM impacts WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return impact.Impact{}, ErrNotFound
	}
	if err != nil {
		return impact.Impact{}, fmt.Errorf("query impact: %w", err)
	}
	return decodeImpact(payload)
}

// List returns up to limit impacts, newest first. limit <= 0 returns all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]impact.Impact, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM impacts ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list impacts: %w", err)
	}
	defer rows.Close()

	result := []impact.Impact{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan impact: %w", err)
		}
		imp, err := decodeImpact(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, imp)
	}
	return result, rows.Err()
}

// Delete removes the impact with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM impacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete impact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete impact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts stored impacts per severity.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM impacts GROUP BY severity`)
	if err != nil {
		return Stats{}, fmt.Errorf("impact stats: %w", err)
	}
	defer rows.Close()

	st := emptyStats()
	for rows.Next() {
		var (
			sev   string
			count int
		)
		if err := rows.Scan(&sev, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		st.BySeverity[impact.Severity(sev)] = count
		st.Total += count
	}
	return st, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func decodeImpact(payload string) (impact.Impact, error) {
	var imp impact.Impact
	if err := json.Unmarshal([]byte(payload), &imp); err != nil {
		return impact.Impact{}, fmt.Errorf("decode impact: %w", err)
	}
	return imp, nil
}
