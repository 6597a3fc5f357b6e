package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

func init() {
	logger = New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)
}

// New builds a logger for the given LOG_LEVEL and LOG_FORMAT values.
// Unknown levels fall back to INFO; format "json" selects JSON output.
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	switch strings.ToUpper(level) {
	case "DEBUG":
		l.SetLevel(logrus.DebugLevel)
	case "WARN":
		l.SetLevel(logrus.WarnLevel)
	case "ERROR":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return l
}

// Configure replaces the shared logger settings, used once flags and the
// config file are parsed.
func Configure(level, format string) {
	configured := New(level, format, logger.Out)
	logger.SetLevel(configured.GetLevel())
	logger.SetFormatter(configured.Formatter)
}

// GetLogger returns the shared logger instance
func GetLogger() *logrus.Logger {
	return logger
}
