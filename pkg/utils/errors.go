package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrConfigValidation = errors.New("configuration validation error")
	ErrScheduleWindow   = errors.New("invalid task time window") // endTime before startTime
	ErrUnknownTask      = errors.New("unknown task")
	ErrUnknownTier      = errors.New("unknown queue tier")
	ErrQueueClosed      = errors.New("queue closed")
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL, JSON)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger errors
	ErrSinkCommit       = errors.New("sink commit error") // Wraps SQL sink errors
	ErrExport           = errors.New("document export error")
)

// WrapErrorf wraps a sentinel with a formatted message, keeping errors.Is working on the sentinel.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrScheduleWindow):
		return "Config_ScheduleWindow"
	case errors.Is(err, ErrUnknownTask):
		return "Config_UnknownTask"
	case errors.Is(err, ErrUnknownTier):
		return "Queue_UnknownTier"
	case errors.Is(err, ErrQueueClosed):
		return "Queue_Closed"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem), errors.Is(err, ErrExport):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, ErrExport) {
			return "Export_Other"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrSinkCommit):
		return "Sink_Commit"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	return "Unknown"
}
