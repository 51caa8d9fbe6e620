// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/businessperformancetuning/repcontrol/cmd/replctl/sharedconfig"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogLevel = "info"
	defaultOutCL    = 0.95
)

var (
	defaultLogDir = filepath.Join(sharedconfig.DefaultHomeDir, sharedconfig.DefaultLogDirname)
)

// config defines the command-line and ini-file options for the
// controller binary.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir     string `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to daemon configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	Profile     string `long:"profile" description:"Enable HTTP profiling on the given port"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	OutCL      float64 `short:"c" long:"outcl" description:"Output confidence level used by text dumps"`
	OneMetric  string  `short:"o" long:"metric" description:"Restrict ingestion to a single metric name"`
	CheckOnly  bool    `long:"check-only" description:"Check whether the save file already holds more than one run and satisfies its confidence checks, then exit"`
	Dump       bool    `long:"dump" description:"Write a diagnostic text dump of ingested metrics to stdout once the run finishes (also enabled by -d trace)"`
	DumpConfig bool    `long:"dump-config" description:"Write the loaded metrics configuration to stdout, then exit"`

	FileIn  string `long:"filein" description:"Named pipe or file carrying run records from the simulator"`
	FileOut string `long:"fileout" description:"Named pipe or file carrying GO/STOP tokens to the simulator"`
}

// cleanAndExpandPath expands environment variables and a leading ~ in
// the passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(sharedconfig.DefaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log
// level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems
// for logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and
// set the levels accordingly. An appropriate error is returned if
// anything is invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		setLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- supported subsystems %v", subsysID, supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid", logLevel)
		}
		setLogLevel(subsysID, logLevel)
	}
	return nil
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file, overwriting defaults with any specified
//     options
//  4. Parse CLI options again so they take precedence over the file
//
// The above results in functioning properly without any config settings
// while still allowing the user to override settings with config files
// and command line options, with command line options always winning.
func loadConfig() (*config, []string, error) {
	cfg := config{
		HomeDir:    sharedconfig.DefaultHomeDir,
		ConfigFile: sharedconfig.DefaultConfigFile,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		OutCL:      defaultOutCL,
	}

	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(preCfg.HomeDir)
		if preCfg.ConfigFile == sharedconfig.DefaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, sharedconfig.DefaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, sharedconfig.DefaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, nil, fmt.Errorf("error parsing config file: %w", err)
		}
		configFileError = err
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.HomeDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("loadConfig: failed to create home directory: %w", err)
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	initLogRotator(filepath.Join(cfg.LogDir, sharedconfig.DefaultLogFilename))

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("loadConfig: %w", err)
	}

	if cfg.Profile != "" {
		port, err := strconv.Atoi(cfg.Profile)
		if err != nil || port < 1024 || port > 65535 {
			return nil, nil, fmt.Errorf("loadConfig: profile port must be between 1024 and 65535")
		}
	}

	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
