package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusFailed              = "failed"
)

// Item statuses
const (
	ItemStatusOK      = "ok"
	ItemStatusFailed  = "failed"
	ItemStatusSkipped = "skipped"
)

type Run struct {
	ID         string    `db:"id" json:"id"`
	StartedAt  time.Time `db:"started_at" json:"startedAt"`
	FinishedAt time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	Status     string    `db:"status" json:"status"`
}

// Item is the outcome of one unit of work of a run, e.g. one endpoint fetch,
// one image download or one optimized file.
type Item struct {
	RunID     string    `db:"run_id" json:"runId"`
	Kind      string    `db:"kind" json:"kind"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// newRunID returns a random UUID used as run key in every backend
func newRunID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate run id: %w", err)
	}
	return id.String(), nil
}
