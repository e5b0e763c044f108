package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. Unknown levels fall back to info.
func Setup(level string, format string) *logrus.Logger {
	return configure(logrus.StandardLogger(), level, format, os.Stderr)
}

// New returns a logger detached from the standard one.
func New(level string, out io.Writer) *logrus.Logger {
	return configure(logrus.New(), level, "text", out)
}

// Discard returns a logger that drops everything, for tests and quiet commands.
func Discard() *logrus.Logger {
	return configure(logrus.New(), "panic", "text", io.Discard)
}

func configure(logger *logrus.Logger, level string, format string, out io.Writer) *logrus.Logger {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetOutput(out)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
