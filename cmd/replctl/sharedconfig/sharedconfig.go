package sharedconfig

import (
	"os"
	"path/filepath"
)

const (
	DefaultConfigFilename = "replctl.conf"
	DefaultLogDirname     = "logs"
	DefaultLogFilename    = "replctl.log"
)

var (
	// DefaultHomeDir points to the controller's default application
	// directory.
	DefaultHomeDir = filepath.Join(os.Getenv("HOME"), ".replctl")

	// DefaultConfigFile points to the controller's default CLI/daemon
	// configuration file.
	DefaultConfigFile = filepath.Join(DefaultHomeDir, DefaultConfigFilename)

	// DefaultLogDir points to the controller's default log directory.
	DefaultLogDir = filepath.Join(DefaultHomeDir, DefaultLogDirname)
)
