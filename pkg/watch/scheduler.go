// Package watch runs the recurring crawl tasks: it evaluates task windows on a cron tick and seeds due tasks into the frontier.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	applog "github.com/Sriram-PR/amazon-crawler/pkg/log"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Scheduler seeds the frontier with the URLs of due tasks
type Scheduler struct {
	tasks           []task.Schedulable
	pool            *queue.Pool
	seeds           *SeedSource
	stateManager    *StateManager
	cronSpec        string
	seedConcurrency int
	now             func() time.Time
	reg             *metrics.Registry
	log             *logrus.Entry

	runMu sync.Mutex // One seeding pass at a time
}

// NewScheduler selects the configured tasks and validates their windows.
// An invalid catalog is refused with utils.ErrScheduleWindow or utils.ErrConfigValidation.
func NewScheduler(cfg config.ScheduleConfig, pool *queue.Pool, seeds *SeedSource, stateManager *StateManager, reg *metrics.Registry, log *logrus.Entry) (*Scheduler, error) {
	defs, err := selectTasks(cfg.Tasks)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		pool:            pool,
		seeds:           seeds,
		stateManager:    stateManager,
		cronSpec:        cfg.Cron,
		seedConcurrency: cfg.SeedConcurrency,
		now:             time.Now,
		reg:             reg,
		log:             log.WithField("component", "scheduler"),
	}
	if s.cronSpec == "" {
		s.cronSpec = "@every 1m"
	}
	if s.seedConcurrency <= 0 {
		s.seedConcurrency = 1
	}
	if err := task.Validate(defs, validationInstants(s.now())...); err != nil {
		return nil, err
	}
	for _, d := range defs {
		s.tasks = append(s.tasks, task.ToSchedulable(d))
	}
	return s, nil
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Tasks returns the scheduled tasks in catalog order
func (s *Scheduler) Tasks() []task.Schedulable {
	return append([]task.Schedulable(nil), s.tasks...)
}

func selectTasks(names []string) ([]task.Definition, error) {
	if len(names) == 0 {
		return task.Definitions(), nil
	}
	seen := make(map[string]bool, len(names))
	var defs []task.Definition
	for _, name := range names {
		d, _, err := task.ByName(name)
		if err != nil {
			return nil, err
		}
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		defs = append(defs, d)
	}
	return defs, nil
}

// validationInstants covers every hour of the current day
func validationInstants(now time.Time) []time.Time {
	start := task.StartOfDay(now)
	instants := make([]time.Time, 0, 25)
	for h := 0; h < 24; h++ {
		instants = append(instants, start.Add(time.Duration(h)*time.Hour+30*time.Minute))
	}
	return append(instants, now)
}

// LoadState reads the persisted last runs; call it before RunDue or SeedNow outside of Run
func (s *Scheduler) LoadState() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.stateManager.Load()
}

// Run seeds due tasks immediately and then on every cron tick, until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.LoadState(); err != nil {
		s.log.Warnf("Failed to load schedule state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting scheduler for %d tasks on %q", len(s.tasks), s.cronSpec)
	s.logSchedule()

	s.RunDue(ctx)

	cronLog := applog.NewCronLogrusAdapter(s.log)
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(s.cronSpec, func() { s.RunDue(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.cronSpec, err)
	}
	c.Start()

	<-ctx.Done()
	s.log.Info("Scheduler shutting down...")
	<-c.Stop().Done()
	return nil
}

// RunDue seeds every task that is active and due, and returns the recorded runs
func (s *Scheduler) RunDue(ctx context.Context) []models.TaskRunState {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now()
	var due []task.Schedulable
	for _, t := range s.tasks {
		switch {
		case t.FileName == "":
			// Fed by link collection only
		case !t.IsActive(now):
			s.log.Debugf("Task %s outside its window", t.Name)
		case !s.stateManager.ShouldRun(t.Name, t.Period, now):
		default:
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		s.logNextRun(now)
		return nil
	}

	names := make([]string, len(due))
	for i, t := range due {
		names[i] = t.Name
	}
	s.log.Infof("Seeding %d due tasks: %v", len(due), names)

	runs := make([]models.TaskRunState, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.seedConcurrency)
	for i, t := range due {
		g.Go(func() error {
			runs[i] = s.seedTask(gctx, t, now)
			s.stateManager.Record(runs[i])
			return nil
		})
	}
	_ = g.Wait()

	if s.reg != nil {
		s.reg.Inc(metrics.CounterScheduleRuns)
	}
	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save schedule state: %v", err)
	}
	s.logNextRun(now)
	return runs
}

// SeedNow seeds one scheduled task immediately, ignoring its window and last run
func (s *Scheduler) SeedNow(ctx context.Context, name string) (models.TaskRunState, error) {
	var target *task.Schedulable
	for i := range s.tasks {
		if strings.EqualFold(s.tasks[i].Name, name) {
			target = &s.tasks[i]
			break
		}
	}
	if target == nil {
		return models.TaskRunState{}, utils.WrapErrorf(utils.ErrUnknownTask, "task %q is not scheduled", name)
	}
	if target.FileName == "" {
		return models.TaskRunState{}, utils.WrapErrorf(utils.ErrConfigValidation, "task %s has no seed file", target.Name)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.now()
	run := s.seedTask(ctx, *target, now)
	run.WindowOpen = target.IsActive(now)
	s.stateManager.Record(run)
	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save schedule state: %v", err)
	}
	if run.LastError != "" {
		return run, errors.New(run.LastError)
	}
	return run, nil
}

func (s *Scheduler) seedTask(ctx context.Context, t task.Schedulable, now time.Time) models.TaskRunState {
	run := models.TaskRunState{
		Name:       t.Name,
		Label:      t.Label,
		LastRun:    now,
		NextRun:    now.Add(t.Period),
		WindowOpen: true,
	}
	logger := s.log.WithFields(logrus.Fields{"task": t.Name, "tier": t.Tier()})

	urls, err := s.seeds.Read(t.FileName)
	if err != nil {
		run.LastError = err.Error()
		logger.Errorf("Reading seeds failed: %v", err)
		return run
	}
	run.SeedCount = len(urls)

	q := s.pool.MustGet(t.Tier()).Reentrant()
	deadTime := t.DeadTime(now)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			run.LastError = err.Error()
			break
		}
		item := &models.WorkItem{
			URL:      u,
			Priority: t.Priority.Value(),
			Label:    t.Label,
			DeadTime: deadTime,
		}
		if q.Add(item) {
			run.Enqueued++
		}
	}
	if s.reg != nil {
		s.reg.Add(metrics.CounterSeedsEnqueued, int64(run.Enqueued))
	}
	logger.Infof("Seeded %d/%d URLs", run.Enqueued, run.SeedCount)
	return run
}

// logSchedule logs the current schedule
func (s *Scheduler) logSchedule() {
	s.log.Info("Task schedule:")
	for _, t := range s.tasks {
		st, exists := s.stateManager.Get(t.Name)
		if !exists {
			s.log.Infof("  %s (%s, every %s): never run", t.Name, t.Label, FormatInterval(t.Period))
			continue
		}
		status := "success"
		if st.LastError != "" {
			status = "failed"
		}
		s.log.Infof("  %s (%s, every %s): last run %v (%s, %d/%d seeds)",
			t.Name, t.Label, FormatInterval(t.Period), st.LastRun.Format(time.RFC3339), status, st.Enqueued, st.SeedCount)
	}
}

// logNextRun logs which seeded task comes up next
func (s *Scheduler) logNextRun(now time.Time) {
	var next *TaskStatus
	for _, st := range s.Status(now) {
		if st.FileName == "" {
			continue
		}
		if next == nil || st.NextRun.Before(next.NextRun) {
			next = &st
		}
	}
	if next == nil {
		return
	}
	until := next.NextRun.Sub(now)
	if until < 0 {
		until = 0
	}
	s.log.Debugf("Next seeding: %s in %v (at %s)", next.Name, until.Round(time.Second), next.NextRun.Format("15:04:05"))
}

// TaskStatus is the scheduling view of one task at an instant
type TaskStatus struct {
	Name     string              `json:"name"`
	Label    string              `json:"label"`
	Priority string              `json:"priority"`
	Tier     queue.Tier          `json:"tier"`
	Period   string              `json:"period"`
	FileName string              `json:"file_name,omitempty"`
	Start    time.Time           `json:"window_start"`
	End      time.Time           `json:"window_end"`
	DeadTime time.Time           `json:"dead_time"`
	Active   bool                `json:"active"`
	Expired  bool                `json:"expired"`
	NextRun  time.Time           `json:"next_run"`
	NeverRun bool                `json:"never_run"`
	LastRun  models.TaskRunState `json:"last_run"`
}

// Status evaluates every scheduled task at now, in catalog order
func (s *Scheduler) Status(now time.Time) []TaskStatus {
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, s.statusOf(t, now))
	}
	return out
}

func (s *Scheduler) statusOf(t task.Schedulable, now time.Time) TaskStatus {
	start, end := t.Window(now)
	last, exists := s.stateManager.Get(t.Name)
	return TaskStatus{
		Name:     t.Name,
		Label:    t.Label,
		Priority: t.Priority.String(),
		Tier:     t.Tier(),
		Period:   FormatInterval(t.Period),
		FileName: t.FileName,
		Start:    start,
		End:      end,
		DeadTime: t.DeadTime(now),
		Active:   t.IsActive(now),
		Expired:  t.Expired(now),
		NextRun:  s.stateManager.NextRunTime(t.Name, t.Period, now),
		NeverRun: !exists,
		LastRun:  last,
	}
}

// SortByNextRun orders statuses by their next run, earliest first
func SortByNextRun(statuses []TaskStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].NextRun.Before(statuses[j].NextRun)
	})
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}
