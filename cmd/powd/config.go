// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/ucoin/powd/internal/pow"
	"github.com/ucoin/powd/internal/prover"
	"github.com/ucoin/powd/internal/version"
	"github.com/ucoin/powd/sampleconfig"
)

const (
	defaultConfigFilename = "powd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "powd.log"
	defaultLogSize        = 10 // MiB
	defaultMaxLogRolls    = 3
	defaultNode           = "127.0.0.1:10901"
	defaultNbCores        = 1
)

var (
	defaultHomeDir    = appDataDir("powd")
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// config defines the configuration options for powd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	HomeDir     string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the proof-of-work state"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`

	// Logging and debug options.
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile       string `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65536"`
	MetricsListen string `long:"metricslisten" description:"Serve Prometheus metrics on the given [addr:]port"`

	// Node options.
	Node    string `long:"node" description:"Node API to read blocks from and post blocks to (host:port)"`
	NodeTLS bool   `long:"nodetls" description:"Use https and wss to reach the node API"`

	// Key options.
	Pub string `long:"pub" description:"Base58 public key blocks are issued with"`
	Sec string `long:"sec" description:"Base58 secret key blocks are signed with"`

	// Proof-of-work options.
	CPU                   float64       `long:"cpu" description:"Share of CPU time spent hashing, in (0, 1]"`
	Prefix                uint64        `long:"prefix" description:"Nonce prefix of the node, from 1 to 899 (0 disables it)"`
	NbCores               int           `long:"nbcores" description:"Number of cores searching in parallel"`
	PowDelay              time.Duration `long:"powdelay" description:"Time to wait before computing a block after the node issued the head"`
	PowSecurityRetryDelay time.Duration `long:"powsecurityretrydelay" description:"Longest time to wait for a new block before starting a new round"`
	PowMaxHandicap        uint32        `long:"powmaxhandicap" description:"Greatest accepted distance between the personalized and the minimum difficulty"`
	NearMissZeros         int           `long:"nearmisszeros" description:"Least number of leading zeros of a logged near miss"`
	AvgGenTime            int64         `long:"avggentime" description:"Average block generation time in seconds (0 reads it from the node)"`
	MedianTimeBlocks      uint32        `long:"mediantimeblocks" description:"Number of blocks of the median time (0 reads it from the node)"`
	RootOffset            int64         `long:"rootoffset" description:"Time offset of the first blocks of a chain in seconds"`

	// Command options.
	Show bool  `long:"show" description:"Print the candidate and the proven blocks (gen-next)"`
	At   int64 `long:"at" description:"Force the median time of the generated block (gen-next) or the time of the proven block (prove)"`
}

// appDataDir returns the default application data directory of the named
// application for the current OS.
func appDataDir(appName string) string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			upper := strings.ToUpper(appName[:1]) + appName[1:]
			return filepath.Join(dir, upper)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "."+appName)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]
	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}
	if i := strings.IndexAny(path, pathSeparators); i == 0 || i == -1 && path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path)
		}
	}
	return filepath.Clean("~" + path)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// createDefaultConfigFile writes the sample configuration to destPath.
func createDefaultConfigFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(sampleconfig.Powd()), 0600)
}

// newConfigParser returns a new command line parser for the configuration.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	parser.Usage = "[OPTIONS] run [host port] | gen-next [host] [port] " +
		"[difficulty] | prove <block.json> [difficulty] | keygen"
	return parser
}

// validateWorkerSettings ensures the settings that may change while the
// workers run are in range.
func validateWorkerSettings(funcName string, cfg *config) error {
	if !(cfg.CPU > 0 && cfg.CPU <= 1) {
		str := "%s: cpu must be in (0, 1] -- parsed [%v]"
		return fmt.Errorf(str, funcName, cfg.CPU)
	}
	if cfg.Prefix > pow.MaxPrefix {
		str := "%s: prefix must be between 1 and %d -- parsed [%d]"
		return fmt.Errorf(str, funcName, pow.MaxPrefix, cfg.Prefix)
	}
	return nil
}

// reloadConfig parses the config file of cfg and then the command line args
// again on top of a copy of cfg.  Options set by neither keep their current
// value.  Only the worker settings are validated since they are the only
// ones applied while running.
func reloadConfig(cfg *config, args []string) (*config, error) {
	newCfg := *cfg
	parser := newConfigParser(&newCfg, flags.PassDoubleDash)
	err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := validateWorkerSettings("reloadConfig", &newCfg); err != nil {
		return nil, err
	}
	return &newCfg, nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in powd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
//
// The remaining command line arguments name the command to run.
func loadConfig(appName string, args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:               defaultHomeDir,
		ConfigFile:            defaultConfigFile,
		DataDir:               defaultDataDir,
		LogDir:                defaultLogDir,
		DebugLevel:            defaultLogLevel,
		Node:                  defaultNode,
		CPU:                   prover.DefaultCPU,
		NbCores:               defaultNbCores,
		PowSecurityRetryDelay: prover.DefaultPowSecurityRetryDelay,
		PowMaxHandicap:        prover.DefaultPowMaxHandicap,
		NearMissZeros:         prover.DefaultNearMissZeros,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for powd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	} else {
		cfg.ConfigFile = preCfg.ConfigFile
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	cfg.ConfigFile = cleanAndExpandPath(cfg.ConfigFile)
	if preCfg.ConfigFile == defaultConfigFile && !fileExists(cfg.ConfigFile) {
		if err := createDefaultConfigFile(cfg.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating a default config file: "+
				"%v\n", err)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err = fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	funcName := "loadConfig"
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		return nil, nil, err
	}

	// Validate the proof-of-work settings.
	if err := validateWorkerSettings(funcName, &cfg); err != nil {
		return nil, nil, err
	}
	if cfg.NbCores < 1 || cfg.NbCores > runtime.NumCPU() {
		str := "%s: nbcores must be between 1 and %d -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, funcName, runtime.NumCPU(),
			cfg.NbCores)
	}
	if cfg.PowDelay < 0 || cfg.PowSecurityRetryDelay <= 0 {
		str := "%s: powdelay must not be negative and " +
			"powsecurityretrydelay must be positive"
		return nil, nil, fmt.Errorf(str, funcName)
	}
	if cfg.NearMissZeros < 2 {
		str := "%s: nearmisszeros must be at least 2 -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, funcName, cfg.NearMissZeros)
	}
	if cfg.AvgGenTime < 0 || cfg.RootOffset < 0 {
		str := "%s: avggentime and rootoffset must not be negative"
		return nil, nil, fmt.Errorf(str, funcName)
	}
	if _, _, err := net.SplitHostPort(cfg.Node); err != nil {
		str := "%s: invalid node address %q: %w"
		return nil, nil, fmt.Errorf(str, funcName, cfg.Node, err)
	}

	// Validate the profile and metrics listen addresses.
	if cfg.Profile != "" {
		cfg.Profile = portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(cfg.Profile); err != nil {
			return nil, nil, fmt.Errorf("%s: profile: %w", funcName, err)
		}
	}
	if cfg.MetricsListen != "" {
		cfg.MetricsListen = portToLocalHostAddr(cfg.MetricsListen)
		if err := validateProfileAddr(cfg.MetricsListen); err != nil {
			return nil, nil, fmt.Errorf("%s: metricslisten: %w", funcName,
				err)
		}
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		err := initLogRotator(logFile, defaultLogSize, defaultMaxLogRolls)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", funcName, err)
		}
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		powdLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
