package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

// memStore is an in-memory MembershipStore
type memStore struct {
	mu      sync.Mutex
	entries map[string]models.PageDBEntry
	failOn  string
}

func newMemStore() *memStore { return &memStore{entries: make(map[string]models.PageDBEntry)} }

func (m *memStore) MarkPending(url string, entry *models.PageDBEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url == m.failOn {
		return false, errors.New("boom")
	}
	if e, ok := m.entries[url]; ok && !e.Status.IsTerminal() {
		return false, nil
	}
	m.entries[url] = *entry
	return true, nil
}

func (m *memStore) MarkDone(url string, entry *models.PageDBEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[url] = *entry
	return nil
}

func (m *memStore) status(url string) models.PageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[url].Status
}

func TestReentrantQueue_AcceptsDuplicates(t *testing.T) {
	q := NewReentrantQueue(testLogger())

	assert.True(t, q.Add(&models.WorkItem{URL: "https://www.amazon.com/zgbs/pc?pg=2"}))
	assert.True(t, q.Add(&models.WorkItem{URL: "https://www.amazon.com/zgbs/pc?pg=2"}))

	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Reentrant())

	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Accepted)
	assert.Equal(t, int64(0), stats.Rejected)
}

func TestNonReentrantQueue_Idempotent(t *testing.T) {
	q := NewNonReentrantQueue(TierLower2, nil, testLogger())
	url := "https://www.amazon.com/product-reviews/B000000001"

	assert.True(t, q.Add(&models.WorkItem{URL: url}))
	assert.False(t, q.Add(&models.WorkItem{URL: url}))
	assert.Equal(t, 1, q.Len())
	assert.False(t, q.Reentrant())

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestNonReentrantQueue_InFlightRejectedUntilComplete(t *testing.T) {
	q := NewNonReentrantQueue(TierLower2, nil, testLogger())
	url := "https://www.amazon.com/dp/B000000001"

	require.True(t, q.Add(&models.WorkItem{URL: url}))
	item, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, url, item.URL)

	assert.True(t, q.Contains(url), "popped URL stays in flight")
	assert.False(t, q.Add(&models.WorkItem{URL: url}), "in-flight URL must be rejected")
	assert.Equal(t, 1, q.Stats().InFlight)

	require.NoError(t, q.Complete(url, models.PageStatusSuccess, ""))
	assert.False(t, q.Contains(url))
	assert.True(t, q.Add(&models.WorkItem{URL: url}), "completed URL may be enqueued again")
}

func TestNonReentrantQueue_ConcurrentSameURL(t *testing.T) {
	q := NewNonReentrantQueue(TierLower2, newMemStore(), testLogger())
	url := "https://www.amazon.com/product-reviews/B000000002?pageNumber=2"

	const producers = 50
	var wg sync.WaitGroup
	accepted := make(chan bool, producers)
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted <- q.Add(&models.WorkItem{URL: url})
		}()
	}
	wg.Wait()
	close(accepted)

	wins := 0
	for ok := range accepted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, q.Len())
}

func TestNonReentrantQueue_StoreBacked(t *testing.T) {
	store := newMemStore()
	q := NewNonReentrantQueue(TierLower3, store, testLogger())
	url := "https://www.amazon.com/dp/B000000003"

	require.True(t, q.Add(&models.WorkItem{URL: url, Priority: 1500}))
	assert.Equal(t, models.PageStatusPending, store.status(url))

	// A second queue sharing the store (e.g. after restart) sees the pending key
	q2 := NewNonReentrantQueue(TierLower3, store, testLogger())
	assert.False(t, q2.Add(&models.WorkItem{URL: url}))

	// Restore bypasses the store for URLs it already holds as pending
	assert.True(t, q2.Restore(&models.WorkItem{URL: url}))
	assert.False(t, q2.Restore(&models.WorkItem{URL: url}))

	require.NoError(t, q.Complete(url, models.PageStatusFailure, "Unknown"))
	assert.Equal(t, models.PageStatusFailure, store.status(url))
}

func TestNonReentrantQueue_StoreErrorRejects(t *testing.T) {
	store := newMemStore()
	store.failOn = "https://www.amazon.com/dp/BROKEN"
	q := NewNonReentrantQueue(TierLower2, store, testLogger())

	assert.False(t, q.Add(&models.WorkItem{URL: store.failOn}))
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Contains(store.failOn))
}

func TestNonReentrantQueue_ClosedRejects(t *testing.T) {
	q := NewNonReentrantQueue(TierLower2, nil, testLogger())
	q.Close()
	assert.False(t, q.Add(&models.WorkItem{URL: "https://www.amazon.com/dp/B0"}))
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestAdd_StampsEnqueuedAt(t *testing.T) {
	q := NewReentrantQueue(testLogger())
	item := &models.WorkItem{URL: "u"}
	q.Add(item)
	assert.False(t, item.EnqueuedAt.IsZero())
}
