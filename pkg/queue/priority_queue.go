package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

// --- Priority Queue Implementation ---

// PQItem represents an item in the priority queue
type PQItem struct {
	workItem *models.WorkItem
	priority int    // Lower value means higher priority (Priority13 value)
	seq      uint64 // Insertion order, breaks priority ties FIFO
	index    int    // The index of the item in the heap (required by heap interface)
}

// PriorityQueue implements heap.Interface
type PriorityQueue []*PQItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*PQItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the highest priority element (minimum value) from the heap
func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// ThreadSafePriorityQueue wraps PriorityQueue with concurrency controls.
// Callers that need a compound check-then-push hold mu themselves and use pushLocked.
type ThreadSafePriorityQueue struct {
	pq     PriorityQueue
	mu     sync.Mutex
	cond   *sync.Cond // Condition variable to wait for items
	closed bool
	seq    uint64
	log    *logrus.Entry
}

// NewThreadSafePriorityQueue creates a new thread-safe priority queue
func NewThreadSafePriorityQueue(logger *logrus.Entry) *ThreadSafePriorityQueue {
	tspq := &ThreadSafePriorityQueue{log: logger}
	tspq.cond = sync.NewCond(&tspq.mu)
	heap.Init(&tspq.pq)
	return tspq
}

// Add pushes a work item onto the queue; returns false if the queue is closed
func (tspq *ThreadSafePriorityQueue) Add(item *models.WorkItem) bool {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	return tspq.pushLocked(item)
}

// pushLocked requires tspq.mu to be held
func (tspq *ThreadSafePriorityQueue) pushLocked(item *models.WorkItem) bool {
	if tspq.closed {
		tspq.log.Warnf("Attempted to add item to closed queue: %s", item.URL)
		return false
	}
	tspq.seq++
	heap.Push(&tspq.pq, &PQItem{workItem: item, priority: item.Priority, seq: tspq.seq})
	tspq.cond.Signal() // Wake one waiting consumer
	return true
}

// Pop retrieves and removes the highest priority work item
// It blocks if the queue is empty until an item is added or the queue is closed
// Returns the item and true, or nil and false if the queue is closed and empty
func (tspq *ThreadSafePriorityQueue) Pop() (*models.WorkItem, bool) {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	for len(tspq.pq) == 0 {
		if tspq.closed {
			return nil, false
		}
		tspq.cond.Wait()
	}

	pqItem := heap.Pop(&tspq.pq).(*PQItem)
	return pqItem.workItem, true
}

// TryPop is the non-blocking variant of Pop
func (tspq *ThreadSafePriorityQueue) TryPop() (*models.WorkItem, bool) {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	if len(tspq.pq) == 0 {
		return nil, false
	}
	return heap.Pop(&tspq.pq).(*PQItem).workItem, true
}

// Close signals that no more items will be added to the queue
func (tspq *ThreadSafePriorityQueue) Close() {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	if !tspq.closed {
		tspq.closed = true
		tspq.cond.Broadcast() // Wake all waiting consumers so they can observe the closed state
	}
}

// Len returns the current number of items in the queue (thread-safe)
func (tspq *ThreadSafePriorityQueue) Len() int {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	return len(tspq.pq)
}

// URLs returns the queued URLs in pop order without removing them
func (tspq *ThreadSafePriorityQueue) URLs() []string {
	tspq.mu.Lock()
	cp := make(PriorityQueue, len(tspq.pq))
	for i, it := range tspq.pq {
		dup := *it
		cp[i] = &dup
	}
	tspq.mu.Unlock()

	out := make([]string, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*PQItem).workItem.URL)
	}
	return out
}
