package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/log"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const (
	urlKeyPrefix = "url:"          // Prefix for non-reentrant URL keys in DB
	membershipDB = "membership_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the VisitedStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetVisitedCount
}

// NewBadgerStore initializes and returns a new BadgerStore.
// name separates the membership of independent crawls sharing a state directory.
func NewBadgerStore(ctx context.Context, stateDir, name string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbDirName := utils.SanitizeFilename(name) + "_" + membershipDB
	dbPath := filepath.Join(stateDir, dbDirName)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing membership directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing membership directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing URL membership database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest membership state matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing key count on resume: %d", count)
		}
	}

	logger.Info("URL membership database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(urlKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// decodeEntry reads a stored value; empty or undecodable values count as pending
func (s *BadgerStore) decodeEntry(key, val []byte) (models.PageStatus, *models.PageDBEntry) {
	if len(val) == 0 {
		return models.PageStatusPending, nil
	}
	var decoded models.PageDBEntry
	if errJson := json.Unmarshal(val, &decoded); errJson != nil {
		s.log.Warnf("Failed to unmarshal PageDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
		return models.PageStatusPending, nil
	}
	return decoded.Status, &decoded
}

// MarkPending implements the MembershipStore interface.
// The existence check and the write share one transaction; a conflicting concurrent writer is retried and then sees the key.
func (s *BadgerStore) MarkPending(normalizedURL string, entry *models.PageDBEntry) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: membership DB not initialized", utils.ErrDatabase)
	}
	key := []byte(urlKeyPrefix + normalizedURL)

	pending := *entry
	pending.Status = models.PageStatusPending
	if pending.LastAttempt.IsZero() {
		pending.LastAttempt = time.Now()
	}
	entryBytes, errJson := json.Marshal(&pending)
	if errJson != nil {
		return false, fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
	}

	added, isNew := false, false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added, isNew = false, false
		item, errGet := txn.Get(key)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			isNew = true
		case errGet != nil:
			return errGet
		default:
			var status models.PageStatus
			if errVal := item.Value(func(val []byte) error {
				status, _ = s.decodeEntry(key, val)
				return nil
			}); errVal != nil {
				return errVal
			}
			if !status.IsTerminal() {
				return nil // Still queued or in flight
			}
		}
		if errSet := txn.SetEntry(badger.NewEntry(key, entryBytes)); errSet != nil {
			return errSet
		}
		added = true
		return nil
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkPending: %v", err)
		return false, fmt.Errorf("%w: marking key '%s' pending: %w", utils.ErrDatabase, string(key), err)
	}
	if isNew && added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// MarkDone implements the MembershipStore interface
func (s *BadgerStore) MarkDone(normalizedURL string, entry *models.PageDBEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: membership DB not initialized", utils.ErrDatabase)
	}
	key := []byte(urlKeyPrefix + normalizedURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal PageDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkDone: %v", err)
		return fmt.Errorf("%w: failed setting status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated membership of '%s' to '%s'", normalizedURL, entry.Status)
	return nil
}

// CheckPageStatus implements the MembershipStore interface
func (s *BadgerStore) CheckPageStatus(normalizedURL string) (models.PageStatus, *models.PageDBEntry, error) {
	status := models.PageStatusNotFound
	var entry *models.PageDBEntry
	key := []byte(urlKeyPrefix + normalizedURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			status, entry = s.decodeEntry(key, val)
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckPageStatus for key '%s': %v", string(key), errView)
		return models.PageStatusDBError, nil, errView
	}
	return status, entry, nil
}

// GetVisitedCount implements the StoreAdmin interface.
// Returns the cached key count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
				s.log.Debug("BadgerDB GC cycle completed.")
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// RequeueIncomplete implements the StoreAdmin interface.
// Pending URLs are sent with the tier and priority they were enqueued with.
func (s *BadgerStore) RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (int, int, error) {
	s.log.Info("Resume Mode: Scanning membership database for pending URLs to requeue...")
	requeuedCount := 0
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(urlKeyPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				s.log.Warnf("Resume scan interrupted by context cancellation: %v", ctx.Err())
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := item.KeyCopy(nil)
			urlToRequeue := string(key[len(prefix):])

			errGetValue := item.Value(func(val []byte) error {
				if len(val) > 0 && !json.Valid(val) {
					s.log.Errorf("Resume Scan: Invalid PageDBEntry for '%s'. Skipping.", urlToRequeue)
					scanErrors++
					return nil
				}
				status, entry := s.decodeEntry(key, val)
				if status != models.PageStatusPending {
					return nil
				}
				work := models.WorkItem{URL: urlToRequeue}
				if entry != nil {
					work.Tier = entry.Tier
					work.Priority = entry.Priority
				}
				select {
				case workChan <- work:
					requeuedCount++
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})

			if errGetValue != nil {
				if errors.Is(errGetValue, context.Canceled) || errors.Is(errGetValue, context.DeadlineExceeded) {
					return errGetValue
				}
				s.log.Errorf("Resume Scan: Error getting value for key '%s': %v", urlToRequeue, errGetValue)
				scanErrors++
			}
		}
		return nil
	})

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during DB scan for resume: %v.", scanErr)
		scanErr = fmt.Errorf("%w: resume scan: %w", utils.ErrDatabase, scanErr)
	}
	s.log.Infof("Resume Scan Complete: Requeued %d URLs in %v. Errors: %d.", requeuedCount, time.Since(scanStartTime), scanErrors)
	return requeuedCount, scanErrors, scanErr
}

// WriteVisitedLog implements the StoreAdmin interface.
// Each line is "<status>\t<url>".
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create visited log '%s': %v", filePath, err)
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var dbErr error
	writtenCount := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(urlKeyPrefix)

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-s.ctx.Done():
				s.log.Warnf("WriteVisitedLog scan interrupted by context cancellation: %v", s.ctx.Err())
				return s.ctx.Err()
			default:
			}

			item := it.Item()
			key := item.KeyCopy(nil)
			if !bytes.HasPrefix(key, prefix) {
				s.log.Warnf("Skipping unexpected key in DB: %s", string(key))
				continue
			}

			status := models.PageStatusPending
			_ = item.Value(func(val []byte) error {
				status, _ = s.decodeEntry(key, val)
				return nil
			})

			line := status.String() + "\t" + string(key[len(prefix):]) + "\n"
			if _, writeErr := writer.WriteString(line); writeErr != nil && dbErr == nil {
				dbErr = writeErr
			}
			writtenCount++
			if writtenCount%5000 == 0 {
				if flushErr := writer.Flush(); flushErr != nil && dbErr == nil {
					dbErr = flushErr
				}
			}
		}
		return nil
	})

	if iterErr != nil && !errors.Is(iterErr, context.Canceled) && !errors.Is(iterErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during membership DB iteration for log: %v", iterErr)
		if dbErr == nil {
			dbErr = iterErr
		}
	}

	if flushErr := writer.Flush(); flushErr != nil && dbErr == nil {
		dbErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && dbErr == nil {
		dbErr = syncErr
	}

	if iterErr == nil && dbErr == nil {
		s.log.Infof("Finished writing %d URLs to visited log: %s", writtenCount, filePath)
	} else {
		s.log.Warnf("Finished writing visited log with errors. Wrote ~%d URLs to %s", writtenCount, filePath)
	}

	if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
		return iterErr
	}
	if dbErr != nil {
		return fmt.Errorf("%w: writing visited log '%s': %w", utils.ErrFilesystem, filePath, dbErr)
	}
	return nil
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing membership DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing membership DB: %v", err)
			return err
		}
		return nil
	}
	s.log.Debug("Membership DB already closed or was not initialized.")
	return nil
}
