package logging

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

var logFile *os.File

// Setup configures the global charmbracelet logger. When logFilePath is
// non-empty all output is redirected to that file, which keeps stdout clean
// for CLI commands that render their own summaries.
func Setup(level string, logFilePath string) error {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if logFilePath == "" {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	log.SetOutput(logFile)
	log.Info("logging initialized", "file", logFilePath)
	return nil
}

// Close closes the log file if Setup redirected output to one.
func Close() {
	if logFile != nil {
		logFile.Close()
	}
}
