package database

import "time"

type DatabaseService interface {
	CreateDatabase() error
	DoesDatabaseExist() bool
	Close() error

	// CreateRun starts a new run record and returns its id
	CreateRun(startedAt time.Time) (string, error)
	FinishRun(id string, finishedAt time.Time, status string) error
	AddItem(item Item) error
	GetRuns() ([]*Run, error)
	// GetRunByID returns nil without error when the run does not exist
	GetRunByID(id string) (*Run, error)
	GetItems(runID string) ([]*Item, error)
}
