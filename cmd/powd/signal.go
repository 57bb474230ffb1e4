// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
)

// interruptSignals defines the default signals to catch in order to do a proper
// shutdown.  This may be modified during init depending on the platform.
var interruptSignals = []os.Signal{os.Interrupt}

// reloadSignals defines the signals asking for the configuration to be read
// again.  It is filled during init on the platforms that have them.
var reloadSignals []os.Signal

// shutdownListener listens for OS signals such as SIGINT (Ctrl+C) and returns
// a context that is canceled when one is received.
func shutdownListener() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		// Listen for initial shutdown signal and cancel the returned context.
		sig := <-interruptChannel
		powdLog.Infof("Received signal (%s).  Shutting down...", sig)
		cancel()

		// Listen for repeated signals and display a message so the user
		// knows the shutdown is in progress and the process is not hung.
		for sig := range interruptChannel {
			powdLog.Infof("Received signal (%s).  Already shutting down...",
				sig)
		}
	}()

	return ctx
}

// shutdownRequested returns true when the context returned by shutdownListener
// was canceled.  This simplifies early shutdown slightly since the caller can
// just use an if statement instead of a select.
func shutdownRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}

	return false
}

// reloadListener returns a channel receiving a value for every reload signal
// until ctx is done.  Signals received while the previous one is still pending
// are merged.
func reloadListener(ctx context.Context) <-chan struct{} {
	c := make(chan struct{}, 1)
	if len(reloadSignals) == 0 {
		return c
	}

	reloadChannel := make(chan os.Signal, 1)
	signal.Notify(reloadChannel, reloadSignals...)
	go func() {
		defer signal.Stop(reloadChannel)
		for {
			select {
			case sig := <-reloadChannel:
				powdLog.Infof("Received signal (%s).  Reloading the "+
					"configuration...", sig)
				select {
				case c <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}
