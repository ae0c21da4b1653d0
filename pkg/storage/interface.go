package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

// MembershipStore handles durable non-reentrant URL membership
type MembershipStore interface {
	// MarkPending atomically records url as pending.
	// Returns true if the caller added it, false if it was already pending.
	// URLs whose last attempt finished (success or failure) are accepted again.
	MarkPending(normalizedURL string, entry *models.PageDBEntry) (bool, error)

	// MarkDone records the outcome of a processed URL
	MarkDone(normalizedURL string, entry *models.PageDBEntry) error

	// CheckPageStatus retrieves the status and details of a URL
	// Returns status (PageStatusSuccess, PageStatusFailure, PageStatusPending, PageStatusNotFound, PageStatusDBError),
	// the PageDBEntry if found and parsed, and any error
	CheckPageStatus(normalizedURL string) (status models.PageStatus, entry *models.PageDBEntry, err error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns an approximate count of all keys in the store
	GetVisitedCount() (int, error)

	// RequeueIncomplete scans the DB and sends pending items to the provided channel
	// Should be called only during resume
	RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (requeuedCount int, scanErrors int, err error)

	// WriteVisitedLog writes all membership keys (URLs) with their status to the specified file path
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// VisitedStore combines all store interfaces for components that need full access
type VisitedStore interface {
	MembershipStore
	StoreAdmin
}
