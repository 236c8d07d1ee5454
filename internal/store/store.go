// Package store persists extracted portal records and sync bookkeeping.
// Every entity is written through an upsert on its natural key, so running
// the same extraction twice leaves the store unchanged.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nexconsult/goc-sync/internal/models"
)

// ErrNotFound is returned by lookups that match nothing
var ErrNotFound = errors.New("not found")

// maxVaccineName bounds vaccine names taken from free calendar text
const maxVaccineName = 200

// Store is the write contract of the synchronization engine
type Store interface {
	// UpsertPatient finds a patient by exact name, creating it when missing.
	// A known phone replaces the stored one.
	UpsertPatient(ctx context.Context, name, phone string) (models.Patient, models.UpsertResult, error)
	// ResolveVaccine finds the first vaccine whose name contains info,
	// case-insensitively, creating it with empty stock when missing.
	ResolveVaccine(ctx context.Context, info string) (models.Vaccine, models.UpsertResult, error)
	// UpsertAppointment is keyed by (patient, date, time)
	UpsertAppointment(ctx context.Context, a models.ScheduledAppointment) (models.UpsertResult, error)
	// UpsertStock matches by exact name, then by name prefix. Stock levels
	// are always overwritten; prices only when non-zero.
	UpsertStock(ctx context.Context, item models.StockItem) (models.UpsertResult, error)
	// UpsertListing is keyed by (name, register date)
	UpsertListing(ctx context.Context, u models.UserRecord) (models.UpsertResult, error)

	GetSubmission(ctx context.Context, cpf string) (models.Submission, error)
	SaveSubmission(ctx context.Context, s *models.Submission) error
	AppendLog(ctx context.Context, l models.RegistrationLog) error
	Logs(ctx context.Context, submissionID int64) ([]models.RegistrationLog, error)
	// CleanupOldLogs removes registration logs older than before
	CleanupOldLogs(ctx context.Context, before time.Time) (int64, error)

	SaveRun(ctx context.Context, r *models.SyncRun) error
	RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error)

	Ping(ctx context.Context) error
	Close()
}

// KnownPhone reports whether phone carries an actual number
func KnownPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	return phone != "" && phone != "Não informado"
}

// VaccineName cleans the vaccine line of an appointment; "" means unknown
func VaccineName(info string) string {
	name := strings.TrimSpace(info)
	if name == "Vacina não especificada" {
		return ""
	}
	if r := []rune(name); len(r) > maxVaccineName {
		name = string(r[:maxVaccineName])
	}
	return name
}
