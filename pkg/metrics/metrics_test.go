package metrics

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestRegistry_Counters(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, int64(0), reg.Count(CounterNoSecondaryBestSellers))

	reg.Inc(CounterNoSecondaryBestSellers)
	reg.Add(CounterLinksEnqueued, 5)

	assert.Equal(t, int64(1), reg.Count(CounterNoSecondaryBestSellers))
	assert.Equal(t, int64(5), reg.Count(CounterLinksEnqueued))
	assert.Equal(t, int64(0), reg.Count(CounterNoSecondaryNewReleases))
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Inc(CounterResults)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(2000), reg.Count(CounterResults))
}

func TestRegistry_SnapshotIncludesGauges(t *testing.T) {
	reg := NewRegistry()
	reg.Inc("a")
	reg.RegisterGauge("queueDepth", func() int64 { return 7 })

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap["a"])
	assert.Equal(t, int64(7), snap["queueDepth"])
}

func TestDiagnostics_LastWriteWins(t *testing.T) {
	reg := NewRegistry()
	d := NewDiagnostics(reg)
	assert.Equal(t, "", d.Lang())

	d.SetLang("icp-nav-flag-us")
	d.SetLang("icp-nav-flag-de")
	d.SetDistrict("Deliver to New York 10001")

	assert.Equal(t, "icp-nav-flag-de", d.Lang())
	labels := reg.Labels()
	assert.Equal(t, "icp-nav-flag-de", labels["lastLang"])
	assert.Equal(t, "Deliver to New York 10001", labels["lastDistrict"])
}

func TestDiagnostics_ConcurrentWriters(t *testing.T) {
	d := NewDiagnostics(nil)
	var wg sync.WaitGroup
	for _, v := range []string{"en", "de", "fr", "ja"} {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				d.SetLang(v)
				_ = d.Lang()
			}
		}(v)
	}
	wg.Wait()
	assert.Contains(t, []string{"en", "de", "fr", "ja"}, d.Lang())
}

func TestLogStatusWriter(t *testing.T) {
	reg := NewRegistry()
	w := NewLogStatusWriter(testLogger(), reg)
	w.maxKeep = 2

	w.ReportExtractedNullFields("[price] | https://www.amazon.com/dp/B0")
	w.ReportIrrelevant("not amazon")
	w.ReportExtractedNullFields("[asin] | https://www.amazon.com/dp/B1")

	recent := w.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "irrelevant", recent[0].Kind)
	assert.Equal(t, "null_fields", recent[1].Kind)
	assert.Equal(t, int64(2), reg.Count(CounterNullFieldReports))
	assert.Equal(t, int64(1), reg.Count(CounterIrrelevant))
}

func TestRegistry_ServeHTTP(t *testing.T) {
	reg := NewRegistry()
	reg.Inc(CounterNoSecondaryMostWishedFor)
	NewDiagnostics(reg).SetLang("icp-nav-flag-us")

	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "amazon_crawler_nosm_wished_f 1\n")
	assert.Contains(t, body, `amazon_crawler_last_lang_info{value="icp-nav-flag-us"} 1`)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "noszgbs", snakeCase("noszgbs"))
	assert.Equal(t, "robots_disallowed", snakeCase("robotsDisallowed"))
	assert.Equal(t, "last_district", snakeCase("lastDistrict"))
}
