package metrics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusWriter receives free-text diagnostic reports
type StatusWriter interface {
	ReportExtractedNullFields(message string)
	ReportIrrelevant(message string)
}

// StatusMessage is one recorded report
type StatusMessage struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const defaultStatusHistory = 200

// LogStatusWriter writes reports to a dedicated logrus entry and keeps the most recent ones in memory
type LogStatusWriter struct {
	log     *logrus.Entry
	reg     *Registry
	mu      sync.Mutex
	recent  []StatusMessage
	maxKeep int
}

// NewLogStatusWriter creates a status writer; reg may be nil
func NewLogStatusWriter(logger *logrus.Entry, reg *Registry) *LogStatusWriter {
	return &LogStatusWriter{
		log:     logger.WithField("component", "status"),
		reg:     reg,
		maxKeep: defaultStatusHistory,
	}
}

// ReportExtractedNullFields records a product page with required fields missing
func (w *LogStatusWriter) ReportExtractedNullFields(message string) {
	w.log.WithField("kind", "null_fields").Info(message)
	w.record("null_fields", message, CounterNullFieldReports)
}

// ReportIrrelevant records an irrelevant page worth inspecting
func (w *LogStatusWriter) ReportIrrelevant(message string) {
	w.log.WithField("kind", "irrelevant").Info(message)
	w.record("irrelevant", message, CounterIrrelevant)
}

func (w *LogStatusWriter) record(kind, message, counter string) {
	if w.reg != nil {
		w.reg.Inc(counter)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append(w.recent, StatusMessage{Kind: kind, Message: message, At: time.Now()})
	if over := len(w.recent) - w.maxKeep; over > 0 {
		w.recent = append(w.recent[:0], w.recent[over:]...)
	}
}

// Recent returns a copy of the retained messages, oldest first
func (w *LogStatusWriter) Recent() []StatusMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]StatusMessage(nil), w.recent...)
}
