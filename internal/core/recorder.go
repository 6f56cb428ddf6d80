package core

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jo-hoe/cmsbuild/internal/backend/database"
)

// Item kinds recorded for a run
const (
	KindDirectory = "directory"
	KindEndpoint  = "endpoint"
	KindImage     = "image"
	KindOptimize  = "optimize"
)

// KindSummary counts the outcomes of one item kind
type KindSummary struct {
	OK      int `json:"ok"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunRecorder collects the outcome of every unit of work of a run and mirrors
// it into the run ledger. It is safe for concurrent use.
type RunRecorder struct {
	runID  string
	ledger database.DatabaseService

	mu    sync.Mutex
	items []database.Item
}

// NewRunRecorder creates a recorder; ledger may be nil to keep items in memory only
func NewRunRecorder(runID string, ledger database.DatabaseService) *RunRecorder {
	return &RunRecorder{runID: runID, ledger: ledger}
}

// RunID returns the id items are recorded under
func (r *RunRecorder) RunID() string {
	return r.runID
}

// Record stores an ok or failed outcome depending on err
func (r *RunRecorder) Record(kind, name string, err error) {
	if err != nil {
		r.add(kind, name, database.ItemStatusFailed, err.Error())
		return
	}
	r.add(kind, name, database.ItemStatusOK, "")
}

// Skip stores a skipped outcome with the reason
func (r *RunRecorder) Skip(kind, name, reason string) {
	r.add(kind, name, database.ItemStatusSkipped, reason)
}

func (r *RunRecorder) add(kind, name, status, message string) {
	item := database.Item{
		RunID:     r.runID,
		Kind:      kind,
		Name:      name,
		Status:    status,
		Error:     message,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()

	if r.ledger != nil {
		if err := r.ledger.AddItem(item); err != nil {
			slog.Warn("failed to store run item in ledger", "kind", kind, "name", name, "error", err)
		}
	}
}

// Items returns a copy of all recorded items in recording order
func (r *RunRecorder) Items() []database.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]database.Item, len(r.items))
	copy(items, r.items)
	return items
}

// Summary counts recorded outcomes per kind
func (r *RunRecorder) Summary() map[string]KindSummary {
	summary := make(map[string]KindSummary)
	for _, item := range r.Items() {
		s := summary[item.Kind]
		switch item.Status {
		case database.ItemStatusOK:
			s.OK++
		case database.ItemStatusFailed:
			s.Failed++
		case database.ItemStatusSkipped:
			s.Skipped++
		}
		summary[item.Kind] = s
	}
	return summary
}

// Failures returns the number of failed items
func (r *RunRecorder) Failures() int {
	failures := 0
	for _, s := range r.Summary() {
		failures += s.Failed
	}
	return failures
}

// LogSummary writes one log line per item kind
func (r *RunRecorder) LogSummary() {
	summary := r.Summary()
	kinds := make([]string, 0, len(summary))
	for kind := range summary {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		s := summary[kind]
		slog.Info("run summary",
			"run_id", r.runID,
			"kind", kind,
			"ok", s.OK,
			"failed", s.Failed,
			"skipped", s.Skipped)
	}
}
