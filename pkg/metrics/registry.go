package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Counter names shared by the pipeline components
const (
	// Primary labeled portals with no secondary listing link, per label
	CounterNoSecondaryBestSellers   = "noszgbs"
	CounterNoSecondaryMostWishedFor = "nosmWishedF"
	CounterNoSecondaryNewReleases   = "nosnRelease"

	CounterRobotsDisallowed  = "robotsDisallowed"
	CounterLinksExcluded     = "linksExcluded"
	CounterIrrelevant        = "irrelevantPages"
	CounterNullFieldReports  = "extractedNullFields"
	CounterResults           = "extractResults"
	CounterExported          = "exportedDocuments"
	CounterSinkAdded         = "pendingResults"
	CounterLinksEnqueued     = "linksEnqueued"
	CounterLinksRejected     = "linksRejected"
	CounterBestSellerCollect = "bestSellerCollections"
	CounterSeedsEnqueued     = "seedsEnqueued"
	CounterScheduleRuns      = "scheduleRuns"
)

// Registry holds named monotonic counters and numeric gauges. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	gauges   map[string]func() int64
	labels   map[string]func() string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
		gauges:   make(map[string]func() int64),
		labels:   make(map[string]func() string),
	}
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c
	}
	c = new(atomic.Int64)
	r.counters[name] = c
	return c
}

// Inc increments the named counter by one
func (r *Registry) Inc(name string) { r.counter(name).Add(1) }

// Add increments the named counter by n
func (r *Registry) Add(name string, n int64) { r.counter(name).Add(n) }

// Count returns the current value of the named counter (0 if never incremented)
func (r *Registry) Count(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// RegisterGauge registers a numeric gauge read on every snapshot
func (r *Registry) RegisterGauge(name string, fn func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = fn
}

// RegisterLabel registers a text-valued gauge
func (r *Registry) RegisterLabel(name string, fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels[name] = fn
}

// Snapshot returns counters and numeric gauges by name
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.counters)+len(r.gauges))
	for name, c := range r.counters {
		out[name] = c.Load()
	}
	for name, fn := range r.gauges {
		out[name] = fn()
	}
	return out
}

// Labels returns the current value of every text gauge
func (r *Registry) Labels() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.labels))
	for name, fn := range r.labels {
		out[name] = fn()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
