package model

import "time"

// RunMode selects whether an import run may mutate the ledger store.
type RunMode string

const (
	ModeDryRun RunMode = "dry-run"
	ModeApply  RunMode = "apply"
)

// RunStatus is the terminal state of an import run.
type RunStatus string

const (
	RunOpen       RunStatus = "open"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunRolledBack RunStatus = "rolled-back"
)

// ImportRun records one reconstruction pass. Immutable once closed.
type ImportRun struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Mode             RunMode
	SourceDocumentID string
	AccountID        string
	Parsed           int
	Merged           int
	Duplicate        int
	Flagged          int
	BackupID         string
	Status           RunStatus
}

// Closed reports whether the run has reached a terminal status.
func (r ImportRun) Closed() bool {
	return r.Status != "" && r.Status != RunOpen
}

// Close stamps the finish time and status. No-op on an already closed run.
func (r *ImportRun) Close(status RunStatus, at time.Time) {
	if r.Closed() {
		return
	}
	r.Status = status
	r.FinishedAt = at
}
