// Copyright (c) 2024-2025 The Decred developers
// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// portToLocalHostAddr prepends a default host of 127.0.0.1 when the provided
// address is solely a port number.
func portToLocalHostAddr(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	return addr
}

// validateProfileAddr ensures the provided address is of the form "host:port"
// and that the port is between 1024 and 65535.
func validateProfileAddr(addr string) error {
	// Ensure the address is valid host:port syntax.
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	// Ensure the port is in range.
	if port, _ := strconv.Atoi(portStr); port < 1024 || port > 65535 {
		str := "address %q: port must be between 1024 and 65535"
		return fmt.Errorf(str, addr)
	}

	return nil
}

// debugServer serves a handler over HTTP in the background.  It backs both the
// pprof profiling endpoints and the Prometheus metrics endpoint.
type debugServer struct {
	name string

	wg       sync.WaitGroup
	mtx      sync.Mutex
	server   *http.Server
	listener string
}

// profileHandler returns the handler of the pprof profiling endpoints
// registered by the pprof package, with a redirect from the root.
func profileHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
	return mux
}

// metricsHandler returns the handler serving the metrics gathered by g.
func metricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Start binds a listener to the provided address and launches an HTTP server
// that serves handler in the background using that listener.  An error is
// returned when the listener fails to bind.
//
// It has no effect when the server is already running, so it may be called
// multiple times without error.
//
// It is the caller's responsibility to call the Stop method to shutdown the
// server.
func (s *debugServer) Start(listenAddr string, handler http.Handler) error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	// Nothing to do when the server is already running.
	if s.server != nil {
		return nil
	}

	listenAddr = portToLocalHostAddr(listenAddr)
	if err := validateProfileAddr(listenAddr); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", listenAddr, err)
	}
	s.listener = listener.Addr().String()

	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second * 3,
	}
	powdLog.Infof("%s server listening on %s", s.name, listener.Addr())
	s.wg.Add(1)
	go func(httpServer *http.Server) {
		defer s.wg.Done()

		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			powdLog.Errorf("%s server listening on %s exited with "+
				"unexpected error: %v", s.name, listener.Addr(), err)
		}
	}(s.server)

	return nil
}

// Stop immediately closes the active listener and any connections to the
// server.
//
// It has no effect when the server is not running, so it may be called multiple
// times without error.
func (s *debugServer) Stop() error {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	// Nothing to do when the server is not running.
	if s.server == nil {
		return nil
	}

	// Shutdown the server and wait for the serving goroutine to finish.
	err := s.server.Close()
	s.server = nil
	s.listener = ""
	s.wg.Wait()
	if err != nil {
		powdLog.Errorf("%s server stopped with unexpected error: %v", s.name,
			err)
		return err
	}

	powdLog.Infof("%s server stopped", s.name)
	return nil
}

// Listener returns the address the server is listening on, or an empty string
// when it is not running.
func (s *debugServer) Listener() string {
	defer s.mtx.Unlock()
	s.mtx.Lock()

	return s.listener
}
