package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/export"
	"github.com/Sriram-PR/amazon-crawler/pkg/extract"
	"github.com/Sriram-PR/amazon-crawler/pkg/links"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/relevance"
	"github.com/Sriram-PR/amazon-crawler/pkg/sink"
	"github.com/Sriram-PR/amazon-crawler/pkg/storage"
	"github.com/Sriram-PR/amazon-crawler/pkg/watch"
)

const (
	membershipName = "amazon"
	dbGCInterval   = 10 * time.Minute
)

// stack is the set of components shared by the process, schedule and mcp-server commands
type stack struct {
	cfg       *config.AppConfig
	log       *logrus.Entry
	reg       *metrics.Registry
	status    *metrics.LogStatusWriter
	pool      *queue.Pool
	store     *storage.BadgerStore // nil unless queue.durable
	committer *sink.SQLCommitter   // nil unless a sink is configured
	pending   *sink.Manager        // nil unless a sink is configured
	pipeline  *extract.Pipeline
	scheduler *watch.Scheduler

	cancel context.CancelFunc
	bg     sync.WaitGroup // badger GC and sink flushing
}

// newStack wires the components described by cfg. Background loops run until ctx is cancelled
// or Close is called; Close stops them before releasing the stores.
func newStack(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (*stack, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &stack{
		cfg:    cfg,
		log:    logger.WithField("component", "crawler"),
		reg:    metrics.NewRegistry(),
		cancel: cancel,
	}
	s.status = metrics.NewLogStatusWriter(logger.WithField("component", "status"), s.reg)

	// --- Frontier ---
	var membership queue.MembershipStore
	if cfg.Queue.Durable {
		store, err := storage.NewBadgerStore(ctx, cfg.StateDir, membershipName, cfg.Queue.Resume, logger.WithField("component", "membership"))
		if err != nil {
			cancel()
			return nil, err
		}
		s.store = store
		membership = store
		s.goBackground(func() { store.RunGC(ctx, dbGCInterval) })
	}
	s.pool = queue.NewPool(membership, logger.WithField("component", "queue"))
	s.reg.RegisterGauge("queuedURLs", func() int64 { return int64(s.pool.Len()) })
	for _, t := range queue.Tiers {
		c := s.pool.MustGet(t)
		s.reg.RegisterGauge("queued_"+t.String(), func() int64 { return int64(c.Len()) })
	}

	if s.store != nil && cfg.Queue.Resume {
		if _, err := s.requeue(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	// --- Sink ---
	var pending sink.PendingResultManager
	if cfg.Commit.HasSink() {
		committer, err := sink.NewSQLCommitter(cfg.Commit.Driver, cfg.Commit.DSN, cfg.Commit.Table, logger.WithField("component", "sink"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.committer = committer
		s.pending = sink.NewManager(committer, cfg.EffectiveSyncBatchSize(), s.reg, logger.WithField("component", "pending"))
		pending = s.pending
		s.goBackground(func() { s.pending.Run(ctx, cfg.FlushInterval) })
	}

	// --- Pipeline ---
	var robots *links.RobotsPolicy
	if cfg.Robots.Enabled {
		var err error
		robots, err = links.LoadRobotsPolicy(cfg.Robots.RobotsFile, cfg.Robots.UserAgent)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	reviewTier, err := queue.ParseTier(cfg.ReviewTier)
	if err != nil {
		s.Close()
		return nil, err
	}
	extractor, err := extract.NewSelectorExtractor(cfg.Extractor, logger.WithField("component", "extractor"))
	if err != nil {
		s.Close()
		return nil, err
	}
	collector := links.NewCollector(s.pool, cfg.Links, reviewTier, robots, s.reg, logger.WithField("component", "links"))
	s.pipeline = extract.NewPipeline(extract.Deps{
		Extractor:   extractor,
		Gate:        relevance.NewGate(relevance.DocumentChecker{MinContentLength: cfg.MinContentLength}, s.status, logger.WithField("component", "relevance")),
		Site:        extract.NewAmazonSite(collector, cfg.FieldPolicy, s.status),
		Pending:     pending,
		Commit:      cfg.Commit,
		Exporter:    export.NewJSONExporter(cfg.ExportDir, s.reg, logger.WithField("component", "export")),
		Diagnostics: metrics.NewDiagnostics(s.reg),
		Registry:    s.reg,
	}, extract.Options{
		Collection:       cfg.Commit.Collection,
		SyncBatchSize:    cfg.EffectiveSyncBatchSize(),
		SmallBatchSize:   cfg.SmallBatchSize,
		SmallVolumeLimit: cfg.SmallVolumeLimit,
		LowWatermark:     cfg.LowWatermark,
	}, logger.WithField("component", "pipeline"))

	// --- Scheduler ---
	seeds := watch.NewSeedSource(cfg.SeedDir, cfg.Links.DropParams...)
	s.scheduler, err = watch.NewScheduler(cfg.Schedule, s.pool, seeds, watch.NewStateManager(cfg.Schedule.StateFile), s.reg, logger.WithField("component", "watch"))
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *stack) goBackground(fn func()) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn()
	}()
}

// requeue restores URLs left pending in durable membership by a previous run
func (s *stack) requeue(ctx context.Context) (int, error) {
	workChan := make(chan models.WorkItem, 256)
	errCh := make(chan error, 1)
	go func() {
		defer close(workChan)
		_, _, err := s.store.RequeueIncomplete(ctx, workChan)
		errCh <- err
	}()

	restored := 0
	for item := range workChan {
		if s.pool.Restore(&item) {
			restored++
		}
	}
	if err := <-errCh; err != nil {
		return restored, fmt.Errorf("requeue pending URLs: %w", err)
	}
	s.log.Infof("Restored %d pending URLs into the frontier", restored)
	return restored, nil
}

// Flush commits whatever is still pending in the sink
func (s *stack) Flush(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	return s.pending.Flush(ctx)
}

// Close stops the background loops, which flush the sink one last time, then releases the frontier and the stores
func (s *stack) Close() {
	s.cancel()
	s.bg.Wait()
	if s.pool != nil {
		s.pool.Close()
	}
	if s.committer != nil {
		if err := s.committer.Close(); err != nil {
			s.log.Errorf("Closing sink: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Errorf("Closing membership store: %v", err)
		}
	}
}
