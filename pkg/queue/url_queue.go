package queue

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

// URLQueue is one reentrancy-mode queue of a tier
type URLQueue interface {
	// Add enqueues item; returns false when the item was rejected
	Add(item *models.WorkItem) bool
	// Pop blocks until an item is available or the queue is closed
	Pop() (*models.WorkItem, bool)
	TryPop() (*models.WorkItem, bool)
	Len() int
	URLs() []string
	Close()
	Reentrant() bool
	Stats() QueueStats
}

// QueueStats is a point-in-time snapshot of one queue's counters
type QueueStats struct {
	Reentrant bool  `json:"reentrant"`
	Queued    int   `json:"queued"`
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Popped    int64 `json:"popped"`
	InFlight  int   `json:"in_flight"`
}

// MembershipStore persists non-reentrant membership across restarts.
// MarkPending must be an atomic check-then-insert: it returns true only for the caller that added the key.
type MembershipStore interface {
	MarkPending(url string, entry *models.PageDBEntry) (bool, error)
	MarkDone(url string, entry *models.PageDBEntry) error
}

type counters struct {
	accepted atomic.Int64
	rejected atomic.Int64
	popped   atomic.Int64
}

// --- Reentrant ---

// ReentrantQueue accepts every URL, including ones already queued or in flight.
// Used for periodically revisited pages such as catalog listings.
type ReentrantQueue struct {
	pq *ThreadSafePriorityQueue
	counters
}

// NewReentrantQueue creates an empty reentrant queue
func NewReentrantQueue(logger *logrus.Entry) *ReentrantQueue {
	return &ReentrantQueue{pq: NewThreadSafePriorityQueue(logger)}
}

func (q *ReentrantQueue) Add(item *models.WorkItem) bool {
	stampEnqueued(item)
	if !q.pq.Add(item) {
		q.rejected.Add(1)
		return false
	}
	q.accepted.Add(1)
	return true
}

func (q *ReentrantQueue) Pop() (*models.WorkItem, bool) {
	item, ok := q.pq.Pop()
	if ok {
		q.popped.Add(1)
	}
	return item, ok
}

func (q *ReentrantQueue) TryPop() (*models.WorkItem, bool) {
	item, ok := q.pq.TryPop()
	if ok {
		q.popped.Add(1)
	}
	return item, ok
}

func (q *ReentrantQueue) Len() int        { return q.pq.Len() }
func (q *ReentrantQueue) URLs() []string  { return q.pq.URLs() }
func (q *ReentrantQueue) Close()          { q.pq.Close() }
func (q *ReentrantQueue) Reentrant() bool { return true }

func (q *ReentrantQueue) Stats() QueueStats {
	return QueueStats{
		Reentrant: true,
		Queued:    q.pq.Len(),
		Accepted:  q.accepted.Load(),
		Rejected:  q.rejected.Load(),
		Popped:    q.popped.Load(),
	}
}

// --- Non-reentrant ---

// NonReentrantQueue enqueues a URL at most once until it is completed.
// Membership test and heap insertion happen under the heap's own lock, so concurrent producers cannot both enqueue the same URL.
type NonReentrantQueue struct {
	pq      *ThreadSafePriorityQueue
	tier    Tier
	members map[string]struct{} // Queued or in flight; guarded by pq.mu
	store   MembershipStore     // Optional durable membership
	log     *logrus.Entry
	counters
}

// NewNonReentrantQueue creates an empty non-reentrant queue; store may be nil
func NewNonReentrantQueue(tier Tier, store MembershipStore, logger *logrus.Entry) *NonReentrantQueue {
	return &NonReentrantQueue{
		pq:      NewThreadSafePriorityQueue(logger),
		tier:    tier,
		members: make(map[string]struct{}),
		store:   store,
		log:     logger,
	}
}

func (q *NonReentrantQueue) Add(item *models.WorkItem) bool {
	stampEnqueued(item)

	q.pq.mu.Lock()
	defer q.pq.mu.Unlock()

	if _, exists := q.members[item.URL]; exists || q.pq.closed {
		q.rejected.Add(1)
		return false
	}
	if q.store != nil {
		added, err := q.store.MarkPending(item.URL, &models.PageDBEntry{
			Status:      models.PageStatusPending,
			Tier:        q.tier.String(),
			Priority:    item.Priority,
			LastAttempt: item.EnqueuedAt,
		})
		if err != nil {
			q.log.WithField("url", item.URL).Errorf("Membership store rejected enqueue: %v", err)
			q.rejected.Add(1)
			return false
		}
		if !added {
			q.rejected.Add(1)
			return false
		}
	}
	q.members[item.URL] = struct{}{}
	q.pq.pushLocked(item)
	q.accepted.Add(1)
	return true
}

// Restore re-inserts an item whose durable membership is already pending, bypassing the store.
// Used when resuming from a previous run.
func (q *NonReentrantQueue) Restore(item *models.WorkItem) bool {
	stampEnqueued(item)
	q.pq.mu.Lock()
	defer q.pq.mu.Unlock()
	if _, exists := q.members[item.URL]; exists {
		return false
	}
	if !q.pq.pushLocked(item) {
		return false
	}
	q.members[item.URL] = struct{}{}
	q.accepted.Add(1)
	return true
}

// Pop removes the next item; its URL stays a member until Complete is called
func (q *NonReentrantQueue) Pop() (*models.WorkItem, bool) {
	item, ok := q.pq.Pop()
	if ok {
		q.popped.Add(1)
	}
	return item, ok
}

func (q *NonReentrantQueue) TryPop() (*models.WorkItem, bool) {
	item, ok := q.pq.TryPop()
	if ok {
		q.popped.Add(1)
	}
	return item, ok
}

// Complete releases url so it may be enqueued again and records the outcome in the store
func (q *NonReentrantQueue) Complete(url string, status models.PageStatus, errType string) error {
	q.pq.mu.Lock()
	delete(q.members, url)
	q.pq.mu.Unlock()

	if q.store == nil {
		return nil
	}
	now := time.Now()
	entry := &models.PageDBEntry{
		Status:      status,
		Tier:        q.tier.String(),
		ErrorType:   errType,
		LastAttempt: now,
	}
	if status == models.PageStatusSuccess {
		entry.ProcessedAt = now
	}
	return q.store.MarkDone(url, entry)
}

// Contains reports whether url is queued or in flight
func (q *NonReentrantQueue) Contains(url string) bool {
	q.pq.mu.Lock()
	defer q.pq.mu.Unlock()
	_, ok := q.members[url]
	return ok
}

func (q *NonReentrantQueue) Len() int        { return q.pq.Len() }
func (q *NonReentrantQueue) URLs() []string  { return q.pq.URLs() }
func (q *NonReentrantQueue) Close()          { q.pq.Close() }
func (q *NonReentrantQueue) Reentrant() bool { return false }

func (q *NonReentrantQueue) Stats() QueueStats {
	q.pq.mu.Lock()
	queued, members := len(q.pq.pq), len(q.members)
	q.pq.mu.Unlock()
	return QueueStats{
		Queued:   queued,
		Accepted: q.accepted.Load(),
		Rejected: q.rejected.Load(),
		Popped:   q.popped.Load(),
		InFlight: members - queued,
	}
}

func stampEnqueued(item *models.WorkItem) {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
}
