package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the process logger with the shared text format.
// An unparsable level falls back to info and is reported in the returned warning.
func NewLogger(out io.Writer, level string) (*logrus.Logger, string) {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	if level == "" {
		return log, ""
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return log, "Invalid log level '" + level + "', using default 'info'"
	}
	log.SetLevel(parsed)
	return log, ""
}

// Component returns an entry tagged with the component name
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
