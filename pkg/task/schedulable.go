package task

import (
	"errors"
	"time"

	"github.com/Sriram-PR/amazon-crawler/pkg/queue"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Schedulable is the projection of a Definition handed to the scheduler
type Schedulable struct {
	Ordinal      int
	Name         string
	Label        string
	Priority     Priority13
	Period       time.Duration
	Expires      time.Duration
	DeadTime     WindowFunc
	StartTime    WindowFunc
	EndTime      WindowFunc
	FileName     string
	IgnoreTTL    bool
	Refresh      bool
	StoreContent bool
}

// ToSchedulable projects d without side effects. The ordinal is d's catalog position, or -1 for definitions outside the catalog.
func ToSchedulable(d Definition) Schedulable {
	ordinal := -1
	for i := range catalog {
		if catalog[i].Name == d.Name {
			ordinal = i
			break
		}
	}
	return Schedulable{
		Ordinal:      ordinal,
		Name:         d.Name,
		Label:        d.Label,
		Priority:     d.Priority,
		Period:       d.Period,
		Expires:      d.Expires,
		DeadTime:     d.DeadTime,
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		FileName:     d.FileName,
		IgnoreTTL:    d.IgnoreTTL,
		Refresh:      d.Refresh,
		StoreContent: d.StoreContent,
	}
}

// Schedulables projects the whole catalog
func Schedulables() []Schedulable {
	out := make([]Schedulable, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, ToSchedulable(d))
	}
	return out
}

// Window returns the task's [start, end] window evaluated at now
func (s Schedulable) Window(now time.Time) (time.Time, time.Time) {
	return s.StartTime(now), s.EndTime(now)
}

// IsActive reports whether now falls inside the task's window.
// IgnoreTTL tasks are always active.
func (s Schedulable) IsActive(now time.Time) bool {
	if s.IgnoreTTL {
		return true
	}
	start, end := s.Window(now)
	return !now.Before(start) && !now.After(end)
}

// Expired reports whether the task's window has closed at now
func (s Schedulable) Expired(now time.Time) bool {
	if s.IgnoreTTL {
		return false
	}
	return now.After(s.EndTime(now))
}

// Tier returns the frontier tier seeds of this task are enqueued into
func (s Schedulable) Tier() queue.Tier { return TierFor(s.Priority) }

// tierPriorities lists the named tiers in priority order; ties resolve to the earlier entry
var tierPriorities = []struct {
	tier     queue.Tier
	priority Priority13
}{
	{queue.TierHigher3, Higher3},
	{queue.TierHigher2, Higher2},
	{queue.TierNormal, Normal},
	{queue.TierLower2, Lower2},
	{queue.TierLower3, Lower3},
}

// TierFor maps a priority to the frontier tier with the nearest priority
func TierFor(p Priority13) queue.Tier {
	best := tierPriorities[0]
	bestDist := distance(p, best.priority)
	for _, tp := range tierPriorities[1:] {
		if d := distance(p, tp.priority); d < bestDist {
			best, bestDist = tp, d
		}
	}
	return best.tier
}

func distance(a, b Priority13) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Validate checks every definition at each of the given instants.
// A window whose end precedes its start wraps utils.ErrScheduleWindow.
func Validate(defs []Definition, instants ...time.Time) error {
	if len(instants) == 0 {
		instants = []time.Time{time.Now()}
	}
	var errs []error
	for _, d := range defs {
		if d.Label == "" {
			errs = append(errs, utils.WrapErrorf(utils.ErrConfigValidation, "task %s: empty label", d.Name))
		}
		if d.Period <= 0 || d.Expires <= 0 {
			errs = append(errs, utils.WrapErrorf(utils.ErrConfigValidation, "task %s: period and expiry must be positive", d.Name))
		}
		if d.StartTime == nil || d.EndTime == nil || d.DeadTime == nil {
			errs = append(errs, utils.WrapErrorf(utils.ErrConfigValidation, "task %s: missing window function", d.Name))
			continue
		}
		for _, now := range instants {
			start, end := d.StartTime(now), d.EndTime(now)
			if end.Before(start) {
				errs = append(errs, utils.WrapErrorf(utils.ErrScheduleWindow,
					"task %s at %s: end %s before start %s", d.Name, now.Format(time.RFC3339), end.Format(time.RFC3339), start.Format(time.RFC3339)))
				break
			}
		}
	}
	return errors.Join(errs...)
}
