package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// CommitConfig is the part of the sink configuration the pipeline consults
type CommitConfig interface {
	HasSink() bool
}

// PendingResultManager buffers extracted rows and syncs them to the sink in batches
type PendingResultManager interface {
	Add(collection, extractor string, row *models.ResultRow, deadTime time.Time) error
	SetSyncBatchSize(n int)
	SyncBatchSize() int
	ResultCount() int64
}

// Result is one buffered row
type Result struct {
	Collection string
	Extractor  string
	Row        *models.ResultRow
	DeadTime   time.Time
	AddedAt    time.Time
}

// Batch is a set of results committed together
type Batch struct {
	ID      string
	Results []Result
}

// Committer writes a batch to durable storage
type Committer interface {
	Commit(ctx context.Context, batch Batch) error
	Close() error
}

// Manager implements PendingResultManager.
// A batch is committed when the buffer reaches the sync batch size, or when any buffered row passes its dead time.
type Manager struct {
	committer Committer
	batchSize atomic.Int64
	added     atomic.Int64
	committed atomic.Int64
	mu        sync.Mutex
	pending   []Result
	reg       *metrics.Registry
	log       *logrus.Entry
}

// NewManager creates a manager; reg may be nil
func NewManager(committer Committer, batchSize int, reg *metrics.Registry, logger *logrus.Entry) *Manager {
	m := &Manager{
		committer: committer,
		reg:       reg,
		log:       logger.WithField("component", "pending_results"),
	}
	m.SetSyncBatchSize(batchSize)
	if reg != nil {
		reg.RegisterGauge("pendingBuffered", func() int64 { return int64(m.Buffered()) })
		reg.RegisterGauge("committedResults", m.committed.Load)
	}
	return m
}

// SetSyncBatchSize changes the batch size; values below 1 are treated as 1
func (m *Manager) SetSyncBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	m.batchSize.Store(int64(n))
}

func (m *Manager) SyncBatchSize() int { return int(m.batchSize.Load()) }

// ResultCount returns the number of rows added since startup
func (m *Manager) ResultCount() int64 { return m.added.Load() }

// Committed returns the number of rows committed since startup
func (m *Manager) Committed() int64 { return m.committed.Load() }

// Buffered returns the number of rows waiting to be committed
func (m *Manager) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Add buffers a row and commits the buffer once it is full
func (m *Manager) Add(collection, extractor string, row *models.ResultRow, deadTime time.Time) error {
	if row == nil {
		return nil
	}
	m.mu.Lock()
	m.pending = append(m.pending, Result{
		Collection: collection,
		Extractor:  extractor,
		Row:        row,
		DeadTime:   deadTime,
		AddedAt:    time.Now(),
	})
	var batch []Result
	if len(m.pending) >= m.SyncBatchSize() {
		batch = m.takeLocked()
	}
	m.mu.Unlock()

	m.added.Add(1)
	if m.reg != nil {
		m.reg.Inc(metrics.CounterSinkAdded)
	}
	if batch == nil {
		return nil
	}
	return m.commit(context.Background(), batch)
}

// FlushExpired commits the buffer if any row has passed its dead time
func (m *Manager) FlushExpired(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	expired := false
	for _, r := range m.pending {
		if !r.DeadTime.IsZero() && !now.Before(r.DeadTime) {
			expired = true
			break
		}
	}
	var batch []Result
	if expired {
		batch = m.takeLocked()
	}
	m.mu.Unlock()

	if batch == nil {
		return nil
	}
	return m.commit(ctx, batch)
}

// Flush commits everything buffered
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.takeLocked()
	m.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return m.commit(ctx, batch)
}

// Run checks dead times every interval until ctx is done, then flushes what is left
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if err := m.FlushExpired(ctx, now); err != nil {
				m.log.Errorf("Dead-time flush failed: %v", err)
			}
		case <-ctx.Done():
			// The run context is gone; the final flush gets its own bounded one
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.Flush(flushCtx); err != nil {
				m.log.Errorf("Final flush failed: %v", err)
			}
			cancel()
			return
		}
	}
}

func (m *Manager) takeLocked() []Result {
	if len(m.pending) == 0 {
		return nil
	}
	batch := m.pending
	m.pending = nil
	return batch
}

// commit writes batch; on failure the rows go back to the front of the buffer
func (m *Manager) commit(ctx context.Context, results []Result) error {
	batch := Batch{ID: uuid.NewString(), Results: results}
	logger := m.log.WithFields(logrus.Fields{"batch_id": batch.ID, "size": len(results)})

	if err := m.committer.Commit(ctx, batch); err != nil {
		m.mu.Lock()
		m.pending = append(results, m.pending...)
		m.mu.Unlock()
		logger.Warnf("Commit failed, rows kept for retry: %v", err)
		if errors.Is(err, utils.ErrSinkCommit) {
			return err
		}
		return fmt.Errorf("%w: batch %s: %w", utils.ErrSinkCommit, batch.ID, err)
	}
	m.committed.Add(int64(len(results)))
	logger.Debug("Committed pending results")
	return nil
}
