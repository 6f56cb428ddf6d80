package database

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database, and items are
	// recorded from many goroutines
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS run_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) CreateRun(startedAt time.Time) (string, error) {
	id, err := newRunID()
	if err != nil {
		return "", err
	}

	_, err = s.db.Exec("INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)",
		id, startedAt.UnixNano(), RunStatusRunning)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *SQLiteDatabase) FinishRun(id string, finishedAt time.Time, status string) error {
	res, err := s.db.Exec("UPDATE runs SET finished_at = ?, status = ? WHERE id = ?",
		finishedAt.UnixNano(), status, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteDatabase) AddItem(item Item) error {
	_, err := s.db.Exec("INSERT INTO run_items (run_id, kind, name, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		item.RunID, item.Kind, item.Name, item.Status, item.Error, item.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteDatabase) GetRuns() ([]*Run, error) {
	rows, err := s.db.Query("SELECT id, started_at, finished_at, status FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteDatabase) GetRunByID(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT id, started_at, finished_at, status FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteDatabase) GetItems(runID string) ([]*Item, error) {
	rows, err := s.db.Query("SELECT run_id, kind, name, status, error, created_at FROM run_items WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	items := []*Item{}
	for rows.Next() {
		var item Item
		var createdAt int64
		if err := rows.Scan(&item.RunID, &item.Kind, &item.Name, &item.Status, &item.Error, &createdAt); err != nil {
			return nil, err
		}
		item.CreatedAt = time.Unix(0, createdAt)
		items = append(items, &item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt int64
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Status); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt)
	if finishedAt != 0 {
		run.FinishedAt = time.Unix(0, finishedAt)
	}
	return &run, nil
}
