package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/amazon-crawler/pkg/config"
	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/task"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h30m"},
		{24 * time.Hour, "1d"},
		{36 * time.Hour, "1d12h"},
		{7 * 24 * time.Hour, "7d"},
		{7200 * time.Hour, "300d"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatInterval(tt.input))
		})
	}
}

func TestStateManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schedule_state.json")
	sm := NewStateManager(path)
	require.NoError(t, sm.Load(), "missing file starts fresh")
	assert.Equal(t, path, sm.Path())

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.True(t, sm.ShouldRun("BEST_SELLERS", task.Day, now))
	assert.Equal(t, now, sm.NextRunTime("BEST_SELLERS", task.Day, now))

	sm.Record(models.TaskRunState{Name: "BEST_SELLERS", Label: "zgbs", LastRun: now, SeedCount: 6, Enqueued: 6})
	assert.False(t, sm.ShouldRun("BEST_SELLERS", task.Day, now.Add(time.Hour)))
	assert.True(t, sm.ShouldRun("BEST_SELLERS", task.Day, now.Add(task.Day)))
	assert.Equal(t, now.Add(task.Day), sm.NextRunTime("BEST_SELLERS", task.Day, now))

	require.NoError(t, sm.Save())
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reloaded := NewStateManager(path)
	require.NoError(t, reloaded.Load())
	st, ok := reloaded.Get("BEST_SELLERS")
	require.True(t, ok)
	assert.Equal(t, 6, st.Enqueued)
	assert.True(t, st.LastRun.Equal(now))
	assert.Len(t, reloaded.All(), 1)
}

func TestStateManager_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	err := NewStateManager(path).Load()
	assert.ErrorIs(t, err, utils.ErrParsing)
}

func TestSeedSource_Builtin(t *testing.T) {
	urls, err := NewSeedSource("").Read("best-sellers.txt")
	require.NoError(t, err)
	assert.Len(t, urls, 6)
	for _, u := range urls {
		assert.Contains(t, u, "/zgbs")
	}

	urls, err = NewSeedSource("").Read("")
	require.NoError(t, err)
	assert.Empty(t, urls)

	_, err = NewSeedSource("").Read("nope.txt")
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestSeedSource_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "# local list\n\nhttps://www.amazon.com/gp/new-releases/books\nhttps://www.amazon.com/gp/new-releases/books#top\nnot a url\n  https://www.amazon.com/gp/new-releases/music  \n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new-releases.txt"), []byte(content), 0644))

	src := NewSeedSource(dir)
	urls, err := src.Read("new-releases.txt")
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://www.amazon.com/gp/new-releases/books", urls[0])
	assert.Contains(t, urls[1], "/gp/new-releases/music")

	// Files missing from the directory fall back to the built-in lists
	urls, err = src.Read("most-wished-for.txt")
	require.NoError(t, err)
	assert.Len(t, urls, 4)
}

func TestSeedSource_Sitemap(t *testing.T) {
	dir := t.TempDir()
	index := `<sitemapindex><sitemap><loc>https://www.amazon.com/sitemaps/movers.xml</loc></sitemap></sitemapindex>`
	movers := `<urlset>
<url><loc>https://www.amazon.com/gp/movers-and-shakers/electronics/?ref_=zg_bsms</loc></url>
<url><loc>https://www.amazon.com/gp/movers-and-shakers/electronics</loc></url>
<url><loc>https://www.amazon.com/gp/movers-and-shakers/toys</loc></url>
</urlset>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movers-index.xml"), []byte(index), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movers.xml"), []byte(movers), 0644))

	urls, err := NewSeedSource(dir, "ref_").Read("movers-index.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.amazon.com/gp/movers-and-shakers/electronics",
		"https://www.amazon.com/gp/movers-and-shakers/toys",
	}, urls)

	_, err = NewSeedSource(dir).Read("missing.xml")
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestNewScheduler_TaskSelection(t *testing.T) {
	pool := queue.NewPool(nil, testLogger())
	sm := NewStateManager(filepath.Join(t.TempDir(), "s.json"))

	s, err := NewScheduler(config.ScheduleConfig{}, pool, NewSeedSource(""), sm, nil, testLogger())
	require.NoError(t, err)
	assert.Len(t, s.Tasks(), len(task.Definitions()))

	s, err = NewScheduler(config.ScheduleConfig{Tasks: []string{"ASIN", "asin", "REVIEW"}}, pool, NewSeedSource(""), sm, nil, testLogger())
	require.NoError(t, err)
	require.Len(t, s.Tasks(), 2)
	assert.Equal(t, "ASIN", s.Tasks()[0].Name)
	assert.Equal(t, "REVIEW", s.Tasks()[1].Name)

	_, err = NewScheduler(config.ScheduleConfig{Tasks: []string{"NOPE"}}, pool, NewSeedSource(""), sm, nil, testLogger())
	assert.ErrorIs(t, err, utils.ErrUnknownTask)
}

func newTestScheduler(t *testing.T, now *time.Time, names ...string) (*Scheduler, *queue.Pool, *metrics.Registry, *StateManager) {
	t.Helper()
	pool := queue.NewPool(nil, testLogger())
	reg := metrics.NewRegistry()
	sm := NewStateManager(filepath.Join(t.TempDir(), "schedule_state.json"))
	cfg := config.ScheduleConfig{Cron: "@every 1h", Tasks: names, SeedConcurrency: 2}
	s, err := NewScheduler(cfg, pool, NewSeedSource(""), sm, reg, testLogger())
	require.NoError(t, err)
	s.SetClock(func() time.Time { return *now })
	return s, pool, reg, sm
}

func TestRunDue_SeedsActiveTasks(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 15, 0, 0, time.Local)
	s, pool, reg, sm := newTestScheduler(t, &now, "BEST_SELLERS", "MOVERS_AND_SHAKERS", "ASIN")

	runs := s.RunDue(context.Background())
	require.Len(t, runs, 2, "ASIN has no seed file")

	byName := map[string]models.TaskRunState{}
	for _, r := range runs {
		byName[r.Name] = r
		assert.Empty(t, r.LastError)
	}
	assert.Equal(t, 6, byName["BEST_SELLERS"].Enqueued)
	assert.Equal(t, 5, byName["MOVERS_AND_SHAKERS"].Enqueued)

	// NORMAL priority seeds land in the normal tier, HIGHER3 in higher3
	assert.Equal(t, 6, pool.Normal().Reentrant().Len())
	assert.Equal(t, 5, pool.Higher3().Reentrant().Len())
	assert.Zero(t, pool.Normal().NonReentrant().Len())

	item, ok := pool.Higher3().Reentrant().TryPop()
	require.True(t, ok)
	assert.Equal(t, task.LabelMoversAndShakers, item.Label)
	assert.Equal(t, task.Higher3.Value(), item.Priority)
	assert.True(t, item.DeadTime.Equal(task.EndOfHour(now)))

	item, ok = pool.Normal().Reentrant().TryPop()
	require.True(t, ok)
	assert.Equal(t, task.LabelBestSellers, item.Label)
	assert.True(t, item.DeadTime.Equal(task.EndOfDay(now)))

	assert.Equal(t, int64(11), reg.Count(metrics.CounterSeedsEnqueued))
	assert.FileExists(t, sm.Path())

	// Nothing is due again within the period
	assert.Empty(t, s.RunDue(context.Background()))

	// An hour later only the hourly task is due
	now = now.Add(time.Hour)
	runs = s.RunDue(context.Background())
	require.Len(t, runs, 1)
	assert.Equal(t, "MOVERS_AND_SHAKERS", runs[0].Name)
	assert.Equal(t, int64(2), reg.Count(metrics.CounterScheduleRuns))
}

func TestRunDue_SkipsClosedWindow(t *testing.T) {
	// BEST_SELLERS opens at 09:00
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)
	s, pool, _, _ := newTestScheduler(t, &now, "BEST_SELLERS", "MOVERS_AND_SHAKERS")

	runs := s.RunDue(context.Background())
	require.Len(t, runs, 1)
	assert.Equal(t, "MOVERS_AND_SHAKERS", runs[0].Name)
	assert.Zero(t, pool.Normal().Len())

	now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	runs = s.RunDue(context.Background())
	require.Len(t, runs, 2)
	assert.Equal(t, 6, pool.Normal().Len())
}

func TestRunDue_ResumesFromState(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	s, pool, _, sm := newTestScheduler(t, &now, "BEST_SELLERS")
	sm.Record(models.TaskRunState{Name: "BEST_SELLERS", LastRun: now.Add(-time.Hour)})

	assert.Empty(t, s.RunDue(context.Background()))
	assert.Zero(t, pool.Len())
}

func TestRunDue_CancelledContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	s, pool, _, _ := newTestScheduler(t, &now, "BEST_SELLERS")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runs := s.RunDue(ctx)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].LastError)
	assert.Zero(t, pool.Len())
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)
	s, _, _, _ := newTestScheduler(t, &now, "BEST_SELLERS", "REVIEW")

	statuses := s.Status(now)
	require.Len(t, statuses, 2)

	bs := statuses[0]
	assert.Equal(t, "BEST_SELLERS", bs.Name)
	assert.Equal(t, queue.TierNormal, bs.Tier)
	assert.Equal(t, "1d", bs.Period)
	assert.False(t, bs.Active)
	assert.False(t, bs.Expired)
	assert.True(t, bs.NeverRun)
	assert.True(t, bs.Start.Equal(task.TimePointOfDay(now, 9, 0)))

	review := statuses[1]
	assert.Equal(t, queue.TierLower3, review.Tier)
	assert.Empty(t, review.FileName)

	later := []TaskStatus{{Name: "b", NextRun: now.Add(time.Hour)}, {Name: "a", NextRun: now}}
	SortByNextRun(later)
	assert.Equal(t, "a", later[0].Name)
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	s, pool, _, _ := newTestScheduler(t, &now, "MOVERS_AND_SHAKERS")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 5, pool.Higher3().Reentrant().Len())
}

func TestSeedNow(t *testing.T) {
	// Outside the BEST_SELLERS window
	now := time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local)
	s, pool, _, sm := newTestScheduler(t, &now, "BEST_SELLERS", "ASIN")

	run, err := s.SeedNow(context.Background(), "best_sellers")
	require.NoError(t, err)
	assert.Equal(t, 6, run.Enqueued)
	assert.False(t, run.WindowOpen)
	assert.Equal(t, 6, pool.Normal().Reentrant().Len())

	st, ok := sm.Get("BEST_SELLERS")
	require.True(t, ok)
	assert.True(t, st.LastRun.Equal(now))

	_, err = s.SeedNow(context.Background(), "ASIN")
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	_, err = s.SeedNow(context.Background(), "REVIEW")
	assert.ErrorIs(t, err, utils.ErrUnknownTask)
}
