package queue

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Tier names a priority bucket of the crawl frontier
type Tier string

const (
	TierHigher3 Tier = "higher3"
	TierHigher2 Tier = "higher2"
	TierDefault Tier = "default" // Default frontier
	TierNormal  Tier = "normal"
	TierLower2  Tier = "lower2"
	TierLower3  Tier = "lower3"
)

// Tiers lists every tier in the order the frontier drains them
var Tiers = []Tier{TierHigher3, TierHigher2, TierDefault, TierNormal, TierLower2, TierLower3}

// String implements fmt.Stringer
func (t Tier) String() string { return string(t) }

// IsValid reports whether t is a known tier
func (t Tier) IsValid() bool {
	for _, known := range Tiers {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTier looks a tier up by name, case-insensitively
func ParseTier(name string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(name)))
	if !t.IsValid() {
		return "", utils.WrapErrorf(utils.ErrUnknownTier, "%q", name)
	}
	return t, nil
}

// URLCache is one tier: a reentrant and a non-reentrant queue
type URLCache struct {
	tier         Tier
	reentrant    *ReentrantQueue
	nonReentrant *NonReentrantQueue
}

func (c *URLCache) Tier() Tier                       { return c.tier }
func (c *URLCache) Reentrant() *ReentrantQueue       { return c.reentrant }
func (c *URLCache) NonReentrant() *NonReentrantQueue { return c.nonReentrant }

// Len returns the number of URLs queued in both queues
func (c *URLCache) Len() int { return c.reentrant.Len() + c.nonReentrant.Len() }

// TierStats is a snapshot of one tier for status reporting
type TierStats struct {
	Tier         Tier       `json:"tier"`
	Reentrant    QueueStats `json:"reentrant"`
	NonReentrant QueueStats `json:"non_reentrant"`
}

// Pool holds every tier. It is created once at startup and shared by all page processors.
type Pool struct {
	caches map[Tier]*URLCache
	log    *logrus.Entry
}

// NewPool creates a pool with every tier. store backs non-reentrant membership and may be nil.
func NewPool(store MembershipStore, logger *logrus.Entry) *Pool {
	p := &Pool{caches: make(map[Tier]*URLCache, len(Tiers)), log: logger}
	for _, t := range Tiers {
		tierLog := logger.WithField("tier", t.String())
		p.caches[t] = &URLCache{
			tier:         t,
			reentrant:    NewReentrantQueue(tierLog),
			nonReentrant: NewNonReentrantQueue(t, store, tierLog),
		}
	}
	return p
}

// Get returns the tier's cache
func (p *Pool) Get(t Tier) (*URLCache, error) {
	c, ok := p.caches[t]
	if !ok {
		return nil, utils.WrapErrorf(utils.ErrUnknownTier, "%q", t)
	}
	return c, nil
}

// MustGet is Get for tiers known at compile time
func (p *Pool) MustGet(t Tier) *URLCache {
	c, err := p.Get(t)
	if err != nil {
		panic(err)
	}
	return c
}

func (p *Pool) Higher3() *URLCache { return p.caches[TierHigher3] }
func (p *Pool) Higher2() *URLCache { return p.caches[TierHigher2] }
func (p *Pool) Default() *URLCache { return p.caches[TierDefault] }
func (p *Pool) Normal() *URLCache  { return p.caches[TierNormal] }
func (p *Pool) Lower2() *URLCache  { return p.caches[TierLower2] }
func (p *Pool) Lower3() *URLCache  { return p.caches[TierLower3] }

// Dequeued is an item popped from the pool with the queue it came from
type Dequeued struct {
	Item      *models.WorkItem
	Tier      Tier
	Reentrant bool
}

// Next pops the next URL without blocking, draining tiers in order and the reentrant queue of a tier before its non-reentrant one
func (p *Pool) Next() (Dequeued, bool) {
	for _, t := range Tiers {
		c := p.caches[t]
		if item, ok := c.reentrant.TryPop(); ok {
			return Dequeued{Item: item, Tier: t, Reentrant: true}, true
		}
		if item, ok := c.nonReentrant.TryPop(); ok {
			return Dequeued{Item: item, Tier: t}, true
		}
	}
	return Dequeued{}, false
}

// Complete releases a dequeued non-reentrant URL; reentrant items need no completion
func (p *Pool) Complete(d Dequeued, status models.PageStatus, errType string) error {
	if d.Reentrant || d.Item == nil {
		return nil
	}
	c, err := p.Get(d.Tier)
	if err != nil {
		return err
	}
	return c.nonReentrant.Complete(d.Item.URL, status, errType)
}

// Restore puts a durable pending URL back into the non-reentrant queue of its recorded tier.
// Items with an unknown or empty tier go to the default tier.
func (p *Pool) Restore(item *models.WorkItem) bool {
	t, err := ParseTier(item.Tier)
	if err != nil {
		p.log.WithField("url", item.URL).Debugf("Restoring into default tier: %v", err)
		t = TierDefault
	}
	return p.caches[t].nonReentrant.Restore(item)
}

// Len returns the number of URLs queued across all tiers
func (p *Pool) Len() int {
	n := 0
	for _, c := range p.caches {
		n += c.Len()
	}
	return n
}

// Stats snapshots every tier in drain order
func (p *Pool) Stats() []TierStats {
	out := make([]TierStats, 0, len(Tiers))
	for _, t := range Tiers {
		c := p.caches[t]
		out = append(out, TierStats{
			Tier:         t,
			Reentrant:    c.reentrant.Stats(),
			NonReentrant: c.nonReentrant.Stats(),
		})
	}
	return out
}

// Close closes every queue, waking blocked consumers
func (p *Pool) Close() {
	for _, c := range p.caches {
		c.reentrant.Close()
		c.nonReentrant.Close()
	}
	p.log.Debug("Queue pool closed")
}
