package services

import (
	"context"
	"time"

	"github.com/nexconsult/goc-sync/internal/models"
)

// CacheServiceInterface defines the interface for cache service
type CacheServiceInterface interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value string) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// SetJSON stores v encoded as JSON
	SetJSON(ctx context.Context, key string, v interface{}) error

	// GetJSON decodes the value stored at key into v
	GetJSON(ctx context.Context, key string, v interface{}) error

	// Health returns cache service health status
	Health() map[string]interface{}
}

// LockerInterface serializes runs across goroutines and processes
type LockerInterface interface {
	// TryLock takes key for ttl; false means another holder has it
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// FormSourceInterface yields the form responses waiting to be registered
type FormSourceInterface interface {
	// Responses returns the latest responses, one per CPF
	Responses(ctx context.Context) ([]models.FormResponse, error)

	// Cleanup removes consumed dumps
	Cleanup(ctx context.Context) error
}

// SyncServiceInterface runs synchronizations against the portal
type SyncServiceInterface interface {
	// Run executes one synchronization of kind and returns the finalized run
	Run(ctx context.Context, kind models.RunKind) (*models.SyncRun, error)

	// RecentRuns lists the latest runs, newest first
	RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error)

	// CalendarStats returns the statistics of the last calendar extraction
	CalendarStats(ctx context.Context) (*models.CalendarStats, error)

	// RecentUsers returns the last extracted patient list
	RecentUsers(ctx context.Context) ([]models.UserRecord, error)

	// CleanupLogs removes expired registration logs
	CleanupLogs(ctx context.Context) (int64, error)
}
