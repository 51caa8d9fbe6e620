// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/businessperformancetuning/repcontrol/control"
	"github.com/businessperformancetuning/repcontrol/ingest"
	"github.com/decred/slog"
	"github.com/jrick/logrotate"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// logRotator pipes written data to stdout and to a rotating log file that
// is periodically rotated at the daily boundary.
var logRotator *logrotate.Rotator

// backendLog is the logging backend used to create all subsystem loggers.
var backendLog = slog.NewBackend(logWriter{})

// subsystemLoggers maps each subsystem identifier to its logger instance.
var subsystemLoggers = map[string]slog.Logger{
	"CTRL": backendLog.Logger("CTRL"),
	"CFGR": backendLog.Logger("CFGR"),
	"INGS": backendLog.Logger("INGS"),
}

// log is the logger used by replctl's own top-level package.
var log = subsystemLoggers["CTRL"]

func init() {
	control.UseLogger(subsystemLoggers["CTRL"])
	ingest.UseLogger(subsystemLoggers["INGS"])
}

// initLogRotator initializes the logging rotator to write logs to
// logFile and create roll files in the same directory.  It must be
// called before the package-global log rotator variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0o700)
	if err != nil {
		os.Stderr.WriteString("failed to create log directory: " + err.Error() + "\n")
		os.Exit(1)
	}
	r, err := logrotate.New(logFile)
	if err != nil {
		os.Stderr.WriteString("failed to create file rotator: " + err.Error() + "\n")
		os.Exit(1)
	}
	logRotator = r
}

// setLogLevel sets the logging level for the provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

var _ io.Writer = logWriter{}
