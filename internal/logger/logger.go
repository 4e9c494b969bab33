// Package logger provides the application-wide structured logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger instance. Call Init before use.
var Log = logrus.New()

// Init configures the shared logger for the given environment.
// Development gets human-readable output, production gets JSON lines.
func Init(development bool) {
	Log.SetOutput(os.Stdout)
	if development {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		return
	}
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
}

// Silence discards all log output. Used by tests.
func Silence() {
	Log.SetOutput(io.Discard)
}
