package models

import "time"

// WorkItem is a URL waiting in one of the frontier queues
type WorkItem struct {
	URL        string
	Priority   int       // Priority13 value; lower value is popped first
	Label      string    // Task label the URL was produced for ("" if none)
	Args       string    // Load arguments carried to the fetch engine
	DeadTime   time.Time // Zero means no dead time
	Tier       string    // Set on items read back from durable membership
	EnqueuedAt time.Time
}

// PageDBEntry stores the membership state of a non-reentrant URL in the database
type PageDBEntry struct {
	Status      PageStatus `json:"status"`                 // "pending", "success" or "failure"
	Tier        string     `json:"tier,omitempty"`         // Tier the URL was enqueued into
	Priority    int        `json:"priority"`               // Priority at enqueue time
	ErrorType   string     `json:"error_type,omitempty"`   // Error category (on failure)
	ProcessedAt time.Time  `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time  `json:"last_attempt"`           // Timestamp of the last enqueue or processing attempt
}

// Page is a fetched page handed to the extraction pipeline by the fetch engine
type Page struct {
	ID         int64     // Sequential page id assigned by the fetch engine
	URL        string    // Normalized page URL
	Label      string    // Task label the page was fetched for
	DeadTime   time.Time // Instant by which its results must be committed
	LoadStatus string    // Free-form load status reported by the fetch engine
	Args       string    // Load arguments the page was fetched with
	FetchedAt  time.Time
}

// TaskRunState is the persisted record of a scheduled task's last seeding run.
type TaskRunState struct {
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run,omitempty"`
	SeedCount  int       `json:"seed_count"`
	Enqueued   int       `json:"enqueued"`
	LastError  string    `json:"last_error,omitempty"`
	WindowOpen bool      `json:"window_open"`
}
