// Package logsetup routes the standard logger to stdout and a rotating file.
package logsetup

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 5
	maxAgeDays = 30
)

// Setup sends log output to stdout and to logFile. A relative logFile is
// placed in the log directory, an empty one disables file logging.
// The returned closer flushes the file.
func Setup(logFile string) io.Closer {
	if logFile == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}
	}
	if !filepath.IsAbs(logFile) {
		logFile = filepath.Join(pathing.GetLogDir(), logFile)
	}

	rotator := NewRotator(logFile)
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.Printf("Logging to %s", logFile)
	return rotator
}

func NewRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
