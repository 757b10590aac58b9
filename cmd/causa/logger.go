package main

import (
	"fmt"
	"os"

	"github.com/causahq/causa/pkg/logger"
)

const (
	// LogLevelEnvVar overrides the log level when the flag is not given.
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFileEnvVar overrides the log file path when the flag is not given.
	LogFileEnvVar = "LOG_FILE"
	// LogFormatEnvVar overrides the log format when the flag is not given.
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is used when neither flag nor env var sets one.
	DefaultLogFormat = "simple"
)

// initLoggerFromCLI initializes the global logger before any command runs.
// Priority: CLI flags > env vars > defaults. The returned cleanup closes the
// log file when one was opened; it is nil for stderr logging.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := cliLogLevel
	if logLevel == "" {
		logLevel = os.Getenv(LogLevelEnvVar)
	}
	if logLevel == "" {
		logLevel = "info"
	}

	logFile := cliLogFile
	if logFile == "" {
		logFile = os.Getenv(LogFileEnvVar)
	}

	logFormat := cliLogFormat
	if logFormat == "" {
		logFormat = os.Getenv(LogFormatEnvVar)
	}
	if logFormat == "" {
		logFormat = DefaultLogFormat
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output *os.File
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	} else {
		output = os.Stderr
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}
