// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ucoin/powd/internal/prover"
)

// testArgs returns command line arguments isolating the configuration in a
// temporary home directory, followed by extra.
func testArgs(t *testing.T, extra ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	args := []string{"--appdata=" + dir, "--nofilelogging"}
	return dir, append(args, extra...)
}

// TestLoadConfigDefaults ensures the defaults apply and that a default config
// file is created from the sample config.
func TestLoadConfigDefaults(t *testing.T) {
	dir, args := testArgs(t)
	cfg, remaining, err := loadConfig("powd", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("unexpected remaining arguments %v", remaining)
	}
	if !fileExists(filepath.Join(dir, defaultConfigFilename)) {
		t.Fatal("default config file not created")
	}
	if cfg.DataDir != filepath.Join(dir, defaultDataDirname) {
		t.Fatalf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.CPU != prover.DefaultCPU || cfg.NbCores != 1 || cfg.Prefix != 0 ||
		cfg.PowSecurityRetryDelay != prover.DefaultPowSecurityRetryDelay ||
		cfg.PowMaxHandicap != prover.DefaultPowMaxHandicap ||
		cfg.NearMissZeros != prover.DefaultNearMissZeros ||
		cfg.Node != defaultNode {

		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

// TestLoadConfigFile ensures config file options override the defaults and
// command line options override the config file.
func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "custom.conf")
	contents := "[Application Options]\ncpu=0.8\nprefix=34\npowdelay=5s\n" +
		"node=10.0.0.1:10901\n"
	if err := os.WriteFile(configFile, []byte(contents), 0600); err != nil {
		t.Fatalf("unable to write config file: %v", err)
	}

	_, args := testArgs(t, "--configfile="+configFile, "--cpu=0.5",
		"gen-next", "localhost", "10901", "70")
	cfg, remaining, err := loadConfig("powd", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CPU != 0.5 || cfg.Prefix != 34 || cfg.PowDelay != 5*time.Second ||
		cfg.Node != "10.0.0.1:10901" {

		t.Fatalf("unexpected options %+v", cfg)
	}
	want := []string{"gen-next", "localhost", "10901", "70"}
	if !reflect.DeepEqual(remaining, want) {
		t.Fatalf("unexpected remaining arguments %v, want %v", remaining, want)
	}
}

// TestLoadConfigInvalid ensures invalid options are rejected.
func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{name: "cpu above one", arg: "--cpu=1.5"},
		{name: "zero cpu", arg: "--cpu=0"},
		{name: "prefix out of range", arg: "--prefix=900"},
		{name: "no core", arg: "--nbcores=0"},
		{name: "negative pow delay", arg: "--powdelay=-1s"},
		{name: "single zero near miss", arg: "--nearmisszeros=1"},
		{name: "unknown debug level", arg: "--debuglevel=verbose"},
		{name: "unknown subsystem", arg: "--debuglevel=NOPE=info"},
		{name: "node without port", arg: "--node=localhost"},
		{name: "privileged profile port", arg: "--profile=80"},
		{name: "unknown option", arg: "--nope"},
	}

	for _, test := range tests {
		_, args := testArgs(t, test.arg)
		if _, _, err := loadConfig("powd", args); err == nil {
			t.Errorf("%s: expected error", test.name)
		}
	}
	setLogLevels(defaultLogLevel)
}

// TestReloadSettings ensures reloaded worker settings reach the prover once
// and that invalid settings leave the running configuration untouched.
func TestReloadSettings(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "powd.conf")
	writeConfig := func(contents string) {
		t.Helper()
		err := os.WriteFile(configFile, []byte(contents), 0600)
		if err != nil {
			t.Fatalf("unable to write config file: %v", err)
		}
	}
	writeConfig("[Application Options]\ncpu=0.6\n")

	_, args := testArgs(t, "--configfile="+configFile)
	cfg, _, err := loadConfig("powd", args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []prover.Event
	handle := func(_ context.Context, ev prover.Event) error {
		events = append(events, ev)
		return nil
	}

	writeConfig("[Application Options]\ncpu=0.5\nprefix=12\n")
	if err := reloadSettings(context.Background(), cfg, args, handle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []prover.Event{
		{Type: prover.CPUChanged, CPU: 0.5},
		{Type: prover.PrefixChanged, Prefix: 12},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("unexpected events %+v, want %+v", events, want)
	}
	if cfg.CPU != 0.5 || cfg.Prefix != 12 {
		t.Fatalf("settings not recorded: cpu %v prefix %d", cfg.CPU,
			cfg.Prefix)
	}

	// Nothing changed since the last reload.
	events = nil
	if err := reloadSettings(context.Background(), cfg, args, handle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events %+v", events)
	}

	writeConfig("[Application Options]\ncpu=2\nprefix=20\n")
	if err := reloadSettings(context.Background(), cfg, args, handle); err == nil {
		t.Fatal("expected error for cpu above one")
	}
	if len(events) != 0 || cfg.CPU != 0.5 || cfg.Prefix != 12 {
		t.Fatalf("invalid reload applied: events %+v cpu %v prefix %d",
			events, cfg.CPU, cfg.Prefix)
	}
}

// TestParseAndSetDebugLevels ensures per subsystem levels are applied.
func TestParseAndSetDebugLevels(t *testing.T) {
	defer setLogLevels(defaultLogLevel)

	if err := parseAndSetDebugLevels("PROV=trace,POW=warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := provLog.Level().String(); got != "TRC" {
		t.Fatalf("unexpected PROV level %s", got)
	}
	if got := powLog.Level().String(); got != "WRN" {
		t.Fatalf("unexpected POW level %s", got)
	}
	if err := parseAndSetDebugLevels("PROV"); err == nil {
		t.Fatal("expected error for a bare subsystem")
	}
}
