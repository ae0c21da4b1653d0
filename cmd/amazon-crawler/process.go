package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/parse"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/traits"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const canonicalSelector = `link[rel="canonical"]`

// processOptions are the process subcommand's flags
type processOptions struct {
	URL             string // Page URL for a single input file
	Label           string // Task label; derived from the URL when empty
	Workers         int
	FrontierFile    string // Where to write the queued URLs after processing
	VisitedLogFile  string // Where to write durable membership after processing
	FirstPageID     int64
	MetricsOverride bool
}

// processSummary counts page outcomes of one process run
type processSummary struct {
	mu       sync.Mutex
	outcomes map[models.LoadOutcome]int
	skipped  int
	enqueued int
	exported int
}

func (s *processSummary) record(outcome models.LoadOutcome, enqueued int, exported bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[outcome]++
	s.enqueued += enqueued
	if exported {
		s.exported++
	}
}

func (s *processSummary) skip() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

// runProcess handles the process subcommand
func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error, fatal); overrides log_level")
	pageURL := fs.String("url", "", "URL of the page (single input file only); default is the page's canonical link")
	label := fs.String("label", "", "Task label the pages were fetched for, e.g. zgbs")
	workers := fs.Int("workers", 0, "Pages processed concurrently (default num_workers)")
	frontier := fs.String("frontier", "", "Write the queued frontier URLs to this file when done")
	visitedLog := fs.String("write-visited-log", "", "Write durable membership to this file when done (queue.durable only)")
	firstID := fs.Int64("first-id", 1, "Page id assigned to the first input")
	withMetrics := fs.Bool("metrics", false, "Serve metrics while processing even if metrics.enabled is false")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: amazon-crawler process [options] <file.html|dir>...\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler process -config config.yaml pages/\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler process -url https://www.amazon.com/dp/B0C1234567 product.html\n")
		fmt.Fprintf(os.Stderr, "  amazon-crawler process -label zgbs -frontier frontier.tsv pages/zgbs/\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	appCfg, warnings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	log := setupLogger(os.Stderr, *logLevel, appCfg.LogLevel)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	opts := processOptions{
		URL:             *pageURL,
		Label:           *label,
		Workers:         *workers,
		FrontierFile:    *frontier,
		VisitedLogFile:  *visitedLog,
		FirstPageID:     *firstID,
		MetricsOverride: *withMetrics,
	}
	err = doProcess(ctx, appCfg, log, opts, fs.Args(), os.Stdout)
	cancel()
	os.Exit(exitCodeFor(err, log))
}

// doProcess runs the input pages through the pipeline and prints a summary to stdout
func doProcess(ctx context.Context, appCfg *config.AppConfig, log *logrus.Logger, opts processOptions, inputs []string, stdout io.Writer) error {
	files, err := collectInputs(inputs)
	if err != nil {
		return err
	}
	if opts.URL != "" && len(files) != 1 {
		return utils.WrapErrorf(utils.ErrConfigValidation, "-url needs exactly one input file, got %d", len(files))
	}
	if len(files) == 0 {
		return utils.WrapErrorf(utils.ErrFilesystem, "no HTML files found in %s", strings.Join(inputs, ", "))
	}

	st, err := newStack(ctx, appCfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if appCfg.Metrics.Enabled || opts.MetricsOverride {
		st.reg.StartServer(ctx, appCfg.Metrics.Addr, appCfg.Metrics.Path, log.WithField("component", "metrics"))
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = appCfg.NumWorkers
	}
	firstID := opts.FirstPageID
	if firstID <= 0 {
		firstID = 1
	}

	summary := &processSummary{outcomes: make(map[models.LoadOutcome]int)}
	var nextID atomic.Int64
	nextID.Store(firstID - 1)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			id := nextID.Add(1)
			logger := log.WithFields(logrus.Fields{"component": "process", "file": path, "page_id": id})

			page, doc, err := loadPage(path, opts.URL, opts.Label, id, appCfg.Links.DropParams)
			if err != nil {
				logger.Warnf("Skipping page: %v", err)
				summary.skip()
				return nil
			}
			out, err := st.pipeline.Process(gctx, page, doc)
			if err != nil {
				logger.Errorf("Processing %s failed [%s]: %v", page.URL, utils.CategorizeError(err), err)
			}
			summary.record(out.LoadOutcome(), out.Links.Enqueued, out.ExportPath != "")
			logger.Debugf("%s -> %s (%s, %d links)", page.URL, out.LoadOutcome(), out.Traits, out.Links.Enqueued)
			return nil
		})
	}
	_ = g.Wait()

	if err := st.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Errorf("Flushing pending results: %v", err)
	}

	if opts.FrontierFile != "" {
		if err := writeFrontierFile(opts.FrontierFile, st.pool); err != nil {
			log.Errorf("Writing frontier: %v", err)
		} else {
			log.Infof("Frontier written to %s", opts.FrontierFile)
		}
	}
	if opts.VisitedLogFile != "" {
		if st.store == nil {
			log.Warn("-write-visited-log needs queue.durable; skipping")
		} else if err := st.store.WriteVisitedLog(opts.VisitedLogFile); err != nil {
			log.Errorf("Writing visited log: %v", err)
		}
	}

	printSummary(stdout, summary, st.pool, time.Since(start))
	return ctx.Err()
}

// collectInputs expands directories into the .html/.htm files directly inside them
func collectInputs(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
		}
		if !info.IsDir() {
			files = append(files, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".html" || ext == ".htm") {
				files = append(files, filepath.Join(in, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadPage reads a saved page. Without rawURL the page's canonical link gives its URL,
// and without label the page's traits give its task label.
func loadPage(path, rawURL, label string, id int64, dropParams []string) (*models.Page, *parse.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	doc, err := parse.ParseDocument(rawURL, content)
	if err != nil {
		return nil, nil, err
	}
	if rawURL == "" {
		canonical, ok := doc.SelectFirstAttr(canonicalSelector, "href")
		if !ok || canonical == "" {
			return nil, nil, utils.WrapErrorf(utils.ErrParsing, "no URL given and no canonical link in %s", path)
		}
		rawURL = canonical
	}
	normalized, u, err := parse.ParseAndNormalize(rawURL, dropParams...)
	if err != nil {
		return nil, nil, err
	}
	doc.URL = u
	doc.Dom.Url = u

	now := time.Now()
	if label == "" {
		label = traits.Classify(normalized, doc).TaskLabel()
	}
	label = task.CanonicalLabel(label)
	page := &models.Page{
		ID:         id,
		URL:        normalized,
		Label:      label,
		LoadStatus: "saved",
		FetchedAt:  now,
	}
	if defs := task.ByLabel(label); len(defs) > 0 {
		page.DeadTime = defs[0].DeadTime(now)
	}
	return page, doc, nil
}

// writeFrontierFile writes one "<tier>\t<queue>\t<url>" line per queued URL, in drain order
func writeFrontierFile(path string, pool *queue.Pool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	w := bufio.NewWriter(f)
	for _, t := range queue.Tiers {
		c := pool.MustGet(t)
		for _, u := range c.Reentrant().URLs() {
			fmt.Fprintf(w, "%s\treentrant\t%s\n", t, u)
		}
		for _, u := range c.NonReentrant().URLs() {
			fmt.Fprintf(w, "%s\tnon-reentrant\t%s\n", t, u)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	return nil
}

func printSummary(w io.Writer, s *processSummary, pool *queue.Pool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.skipped
	for _, n := range s.outcomes {
		total += n
	}
	fmt.Fprintf(w, "Processed %d pages in %v\n", total, elapsed.Round(time.Millisecond))
	for _, o := range []models.LoadOutcome{models.OutcomeDone, models.OutcomeNoResult, models.OutcomeIrrelevant, models.OutcomeFailed} {
		fmt.Fprintf(w, "  %-12s %d\n", o, s.outcomes[o])
	}
	fmt.Fprintf(w, "  %-12s %d\n", "skipped", s.skipped)
	fmt.Fprintf(w, "Exported documents: %d\n", s.exported)
	fmt.Fprintf(w, "Links enqueued: %d\n", s.enqueued)
	fmt.Fprintln(w, "Frontier:")
	for _, ts := range pool.Stats() {
		if ts.Reentrant.Queued == 0 && ts.NonReentrant.Queued == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-8s reentrant=%d non-reentrant=%d\n", ts.Tier, ts.Reentrant.Queued, ts.NonReentrant.Queued)
	}
}
