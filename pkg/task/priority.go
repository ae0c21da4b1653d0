package task

import (
	"fmt"
	"strings"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// Priority13 is a 13-level priority scale. Lower values run first.
type Priority13 int

const (
	Highest Priority13 = -3000
	Higher5 Priority13 = -2500
	Higher4 Priority13 = -2000
	Higher3 Priority13 = -1500
	Higher2 Priority13 = -1000
	Higher  Priority13 = -500
	Normal  Priority13 = 0
	Lower   Priority13 = 500
	Lower2  Priority13 = 1000
	Lower3  Priority13 = 1500
	Lower4  Priority13 = 2000
	Lower5  Priority13 = 2500
	Lowest  Priority13 = 3000
)

// Priorities lists every level from Highest to Lowest
var Priorities = []Priority13{
	Highest, Higher5, Higher4, Higher3, Higher2, Higher,
	Normal,
	Lower, Lower2, Lower3, Lower4, Lower5, Lowest,
}

var priorityNames = map[Priority13]string{
	Highest: "HIGHEST",
	Higher5: "HIGHER5",
	Higher4: "HIGHER4",
	Higher3: "HIGHER3",
	Higher2: "HIGHER2",
	Higher:  "HIGHER",
	Normal:  "NORMAL",
	Lower:   "LOWER",
	Lower2:  "LOWER2",
	Lower3:  "LOWER3",
	Lower4:  "LOWER4",
	Lower5:  "LOWER5",
	Lowest:  "LOWEST",
}

// String implements fmt.Stringer
func (p Priority13) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PRIORITY(%d)", int(p))
}

// Value returns the integer priority used by the frontier queues
func (p Priority13) Value() int { return int(p) }

// HigherThan reports whether p runs before other
func (p Priority13) HigherThan(other Priority13) bool { return p < other }

// ParsePriority13 looks a level up by name, case-insensitively
func ParsePriority13(name string) (Priority13, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for p, n := range priorityNames {
		if n == upper {
			return p, nil
		}
	}
	return 0, utils.WrapErrorf(utils.ErrConfigValidation, "unknown priority %q", name)
}
