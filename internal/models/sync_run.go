package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunKind names the operation a SyncRun covers
type RunKind string

const (
	RunRegistrations RunKind = "registrations"
	RunCalendar      RunKind = "calendar"
	RunStock         RunKind = "stock"
	RunUsers         RunKind = "users"
)

// Valid reports whether k is a known run kind
func (k RunKind) Valid() bool {
	switch k {
	case RunRegistrations, RunCalendar, RunStock, RunUsers:
		return true
	}
	return false
}

// RunStatus is the closed set of run states
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrRunFinalized is returned when a finished run is finalized again
var ErrRunFinalized = errors.New("sync run already finalized")

// SyncRun records one end-to-end synchronization attempt
type SyncRun struct {
	ID              string     `json:"id"`
	Kind            RunKind    `json:"kind"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	TotalNew        int        `json:"total_new"`
	Registered      int        `json:"registered"`
	Duplicates      int        `json:"duplicates"`
	Errors          int        `json:"errors"`
	Created         int        `json:"created"`
	Updated         int        `json:"updated"`
	DurationSeconds float64    `json:"duration_seconds"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// NewSyncRun creates a running SyncRun started at now
func NewSyncRun(kind RunKind, now time.Time) *SyncRun {
	return &SyncRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    RunRunning,
		StartedAt: now,
	}
}

// Finalized reports whether Complete or Fail already ran
func (r *SyncRun) Finalized() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// Complete marks the run completed
func (r *SyncRun) Complete(now time.Time) error {
	return r.finish(RunCompleted, "", now)
}

// Fail marks the run failed with cause as the first-class error message
func (r *SyncRun) Fail(cause error, now time.Time) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.finish(RunFailed, msg, now)
}

func (r *SyncRun) finish(status RunStatus, msg string, now time.Time) error {
	if r.Finalized() {
		return ErrRunFinalized
	}
	r.Status = status
	r.ErrorMessage = msg
	r.FinishedAt = &now
	r.DurationSeconds = now.Sub(r.StartedAt).Seconds()
	return nil
}

// Outcome summarizes the run for operators
func (r *SyncRun) Outcome() string {
	switch {
	case r.Status == RunFailed:
		return "hard failure"
	case r.Status != RunCompleted:
		return string(r.Status)
	case r.Errors > 0:
		return "partial success"
	case r.TotalNew == 0 && r.Created == 0 && r.Updated == 0:
		return "nothing to do"
	}
	return "success"
}
