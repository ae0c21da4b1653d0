package task

import (
	"strings"
	"time"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// Definition is one recurring crawl task. Definitions are created once and never mutated.
type Definition struct {
	Name         string // Enum-style identity, e.g. BEST_SELLERS
	Label        string // Routing key shared with classified pages
	Priority     Priority13
	Period       time.Duration // Nominal recurrence interval
	Expires      time.Duration // How long fetched content stays fresh
	DeadTime     WindowFunc    // Cutoff for committing pending results
	StartTime    WindowFunc
	EndTime      WindowFunc
	FileName     string // Seed URL list, "" if the task has no seeds
	IgnoreTTL    bool
	Refresh      bool
	StoreContent bool
}

// Labels used for routing
const (
	LabelMoversAndShakers = "movers-and-shakers"
	LabelBestSellers      = "zgbs"
	LabelMostWishedFor    = "most-wished-for"
	LabelNewReleases      = "new-releases"
	LabelASIN             = "asin"
	LabelReview           = "review"
)

var catalog = []Definition{
	{
		Name:      "MOVERS_AND_SHAKERS",
		Label:     LabelMoversAndShakers,
		Priority:  Higher3,
		Period:    time.Hour,
		Expires:   time.Hour,
		DeadTime:  EndOfHour,
		StartTime: StartOfHour,
		EndTime:   EndOfHour,
		FileName:  "movers-and-shakers.txt",
	},
	{
		Name:         "BEST_SELLERS",
		Label:        LabelBestSellers,
		Priority:     Normal,
		Period:       Day,
		Expires:      Day,
		DeadTime:     EndOfDay,
		StartTime:    pointOfDay(9, 0),
		EndTime:      pointOfDay(23, 30),
		FileName:     "best-sellers.txt",
		StoreContent: true,
	},
	{
		Name:         "MOST_WISHED_FOR",
		Label:        LabelMostWishedFor,
		Priority:     Normal,
		Period:       Day,
		Expires:      Day,
		DeadTime:     EndOfDay,
		StartTime:    StartOfDay,
		EndTime:      pointOfDay(23, 30),
		FileName:     "most-wished-for.txt",
		StoreContent: true,
	},
	{
		Name:         "NEW_RELEASES",
		Label:        LabelNewReleases,
		Priority:     Normal,
		Period:       Day,
		Expires:      Day,
		DeadTime:     EndOfDay,
		StartTime:    StartOfDay,
		EndTime:      pointOfDay(23, 30),
		FileName:     "new-releases.txt",
		StoreContent: true,
	},
	{
		Name:      "ASIN",
		Label:     LabelASIN,
		Priority:  Lower2,
		Period:    Day,
		Expires:   30 * Day,
		DeadTime:  EndOfDay,
		StartTime: pointOfDay(1, 0),
		EndTime:   pointOfDay(23, 50),
	},
	{
		Name:      "REVIEW",
		Label:     LabelReview,
		Priority:  Lower3,
		Period:    Day,
		Expires:   300 * Day,
		DeadTime:  endOfDayPlus(1),
		StartTime: pointOfDay(23, 30),
		EndTime:   endOfDayPlus(1),
	},
	{
		Name:         "BEST_SELLERS7D",
		Label:        LabelBestSellers,
		Priority:     Normal,
		Period:       Week,
		Expires:      Week,
		DeadTime:     EndOfDay,
		StartTime:    StartOfDay,
		EndTime:      nowPlus(Week),
		FileName:     "best-sellers.txt",
		StoreContent: true,
	},
}

// Definitions returns the task catalog in ordinal order.
// The returned slice is a copy; the catalog itself cannot be modified.
func Definitions() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// ByName looks a definition up by its enum-style name, case-insensitively
func ByName(name string) (Definition, int, error) {
	for i, d := range catalog {
		if strings.EqualFold(d.Name, name) {
			return d, i, nil
		}
	}
	return Definition{}, -1, utils.WrapErrorf(utils.ErrUnknownTask, "no task named %q", name)
}

// ByLabel returns every definition carrying label, in ordinal order.
// "best-sellers" is accepted as an alias of the zgbs label.
func ByLabel(label string) []Definition {
	label = CanonicalLabel(label)
	var out []Definition
	for _, d := range catalog {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}

// CanonicalLabel maps label aliases onto catalog labels
func CanonicalLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "best-sellers" || label == "bestsellers" {
		return LabelBestSellers
	}
	return label
}
