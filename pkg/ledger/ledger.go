// Package ledger keeps a record of engine runs so they can be listed after
// the process that started them has exited.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("ledger: run not found")

// Record describes one engine run.
type Record struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Engine    string        `json:"engine"`
	Protocol  string        `json:"protocol"`
	WorkDir   string        `json:"work_dir"`
	State     string        `json:"state"`
	Pipeline  string        `json:"pipeline,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	ExitCode  int           `json:"exit_code"`
}

// NewRecord returns a queued record with a fresh ID.
func NewRecord(name, engine, protocol, workDir string) *Record {
	return &Record{
		ID:       uuid.NewString(),
		Name:     name,
		Engine:   engine,
		Protocol: protocol,
		WorkDir:  workDir,
		State:    "queued",
	}
}

// Store persists run records.
type Store interface {
	// Save creates or replaces a record.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records ordered by start time.
	List(ctx context.Context) ([]*Record, error)

	// Delete removes a record. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}
