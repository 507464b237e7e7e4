// Package store persists computed impacts.
//
// MemoryStore keeps a bounded history in process memory; SQLiteStore writes
// to a SQLite file through the pure-Go modernc driver. Both assign a UUID to
// impacts saved without an id and list newest first.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/aeroimpact/internal/impact"
)

var (
	// ErrNotFound is returned when no impact has the requested id.
	ErrNotFound = errors.New("impact not found")
)

// ImpactStore is the contract both implementations satisfy.
type ImpactStore interface {
	Save(ctx context.Context, imp impact.Impact) (impact.Impact, error)
	Get(ctx context.Context, id string) (impact.Impact, error)
	List(ctx context.Context, limit int) ([]impact.Impact, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Stats summarizes the stored impacts.
type Stats struct {
	Total      int                     `json:"total"`
	BySeverity map[impact.Severity]int `json:"by_severity"`
}

func emptyStats() Stats {
	s := Stats{BySeverity: make(map[impact.Severity]int, len(impact.Severities))}
	for _, sev := range impact.Severities {
		s.BySeverity[sev] = 0
	}
	return s
}

// Open returns the store selected by driver ("memory" or "sqlite").
// maxHistory <= 0 keeps everything.
func Open(ctx context.Context, driver, path string, maxHistory int) (ImpactStore, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(maxHistory), nil
	case "sqlite":
		s, err := OpenSQLite(path, maxHistory)
		if err != nil {
			return nil, err
		}
		if err := s.InitSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
