// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ucoin/powd/internal/version"
)

// powdMain is the real main function for powd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func powdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, args, err := loadConfig(appName, os.Args[1:])
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer powdLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	powdLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	powdLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		powdLog.Info("File logging disabled")
	}

	// Enable http profile server if requested.
	profiler := debugServer{name: "Profiling"}
	defer profiler.Stop()
	if cfg.Profile != "" {
		if err := profiler.Start(cfg.Profile, profileHandler()); err != nil {
			powdLog.Warnf("unable to start profile server: %v", err)
			return err
		}
	}

	// Serve the metrics if requested.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := debugServer{name: "Metrics"}
	defer metrics.Stop()
	if cfg.MetricsListen != "" {
		err := metrics.Start(cfg.MetricsListen, metricsHandler(reg))
		if err != nil {
			powdLog.Warnf("unable to start metrics server: %v", err)
			return err
		}
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	if err := runCommand(ctx, cfg, args, reg); err != nil {
		powdLog.Errorf("%v", err)
		return err
	}
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := powdMain(); err != nil {
		os.Exit(1)
	}
}
