// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/blockgen"
	"github.com/ucoin/powd/internal/bma"
	"github.com/ucoin/powd/internal/fifo"
	"github.com/ucoin/powd/internal/keypair"
	"github.com/ucoin/powd/internal/powstate"
	"github.com/ucoin/powd/internal/prover"
	"golang.org/x/sync/errgroup"
)

// Commands of powd.
const (
	cmdRun     = "run"
	cmdGenNext = "gen-next"
	cmdProve   = "prove"
	cmdKeygen  = "keygen"
)

// errNoKeyPair is returned by the commands that issue blocks when no key is
// configured.
var errNoKeyPair = errors.New("no key pair configured: set pub and sec")

// runCommand runs the command named by args[0], defaulting to run.
func runCommand(ctx context.Context, cfg *config, args []string, reg *prometheus.Registry) error {
	if len(args) == 0 {
		args = []string{cmdRun}
	}
	switch args[0] {
	case cmdRun:
		return runProver(ctx, cfg, args[1:], reg)
	case cmdGenNext:
		return genNext(ctx, cfg, args[1:], os.Stdout)
	case cmdProve:
		return proveFile(ctx, cfg, args[1:], os.Stdout)
	case cmdKeygen:
		return keygen(nil, os.Stdout)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// nodeAddr returns the node address given by the leading host and port
// arguments, or the configured node when there are none, along with the
// remaining arguments.
func nodeAddr(cfg *config, args []string) (string, []string, error) {
	if len(args) == 0 {
		return cfg.Node, nil, nil
	}
	if len(args) == 1 {
		if _, _, err := net.SplitHostPort(args[0]); err == nil {
			return args[0], nil, nil
		}
		_, port, _ := net.SplitHostPort(cfg.Node)
		return net.JoinHostPort(args[0], port), nil, nil
	}
	if _, err := strconv.ParseUint(args[1], 10, 16); err != nil {
		return "", nil, fmt.Errorf("invalid node port %q", args[1])
	}
	return net.JoinHostPort(args[0], args[1]), args[2:], nil
}

// loadKeyPair returns the configured key pair, prompting for the secret key
// when only the public key is configured.  It returns nil when no key is
// configured.
func loadKeyPair(cfg *config, prompt func(pub string) (string, error)) (*keypair.KeyPair, error) {
	if cfg.Pub == "" && cfg.Sec == "" {
		return nil, nil
	}
	if cfg.Pub == "" {
		return nil, errors.New("a secret key is configured without its " +
			"public key")
	}
	sec := cfg.Sec
	if sec == "" {
		var err error
		if sec, err = prompt(cfg.Pub); err != nil {
			return nil, err
		}
	}
	return keypair.FromBase58(cfg.Pub, sec)
}

// newClient returns a client of the node at addr.
func newClient(cfg *config, addr string) (*bma.Client, error) {
	return bma.New(&bma.Config{Host: addr, TLS: cfg.NodeTLS})
}

// newProverConfig returns the prover configuration backed by the node behind
// client.
func newProverConfig(ctx context.Context, cfg *config, client nodeClient, kp *keypair.KeyPair) (*prover.Config, *nodeChain, error) {
	chain := &nodeChain{client: client}
	params, err := chain.timeParams(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to read the chain parameters: %w",
			err)
	}
	var issuer string
	if kp != nil {
		issuer = kp.PublicKey()
	}
	gen, err := blockgen.New(&blockgen.Config{
		Issuer:           issuer,
		MedianTimeBlocks: params.MedianTimeBlocks,
		Source:           client,
	})
	if err != nil {
		return nil, nil, err
	}
	return &prover.Config{
		KeyPair:               kp,
		CPU:                   cfg.CPU,
		Prefix:                cfg.Prefix,
		NbCores:               cfg.NbCores,
		PowDelay:              cfg.PowDelay,
		PowSecurityRetryDelay: cfg.PowSecurityRetryDelay,
		PowMaxHandicap:        cfg.PowMaxHandicap,
		NearMissZeros:         cfg.NearMissZeros,
		Params:                params,
		Chain:                 chain,
		Generator:             gen,
		Writer:                chain,
		FIFO:                  &fifo.Queue{},
	}, chain, nil
}

// runProver runs the permanent prover against the node until ctx is done.
func runProver(ctx context.Context, cfg *config, args []string, reg *prometheus.Registry) error {
	addr, _, err := nodeAddr(cfg, args)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, addr)
	if err != nil {
		return err
	}
	kp, err := loadKeyPair(cfg, promptSecretKey)
	if err != nil {
		return err
	}
	if kp == nil {
		powdLog.Warnf("No key pair configured: no block will be computed")
	}

	state, err := powstate.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		powdLog.Infof("Gracefully shutting down the proof-of-work state...")
		state.Close()
	}()

	pcfg, _, err := newProverConfig(ctx, cfg, client, kp)
	if err != nil {
		return err
	}
	pcfg.State = state
	pcfg.Metrics = prover.NewMetrics(reg)
	svc := prover.New(pcfg)
	router, err := newHeadRouter(ctx, svc.Handle)
	if err != nil {
		return err
	}

	powdLog.Infof("Proving blocks for node %s", addr)
	if err := svc.StartService(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client.WatchBlocks(gctx, 0, router.publish)
		return nil
	})
	reload := reloadListener(gctx)
	g.Go(func() error {
		for {
			select {
			case <-reload:
				err := reloadSettings(gctx, cfg, os.Args[1:], svc.Handle)
				if err != nil {
					powdLog.Warnf("Unable to reload the configuration: %v",
						err)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		svc.PermanentProver().Wait()
		return nil
	})
	err = g.Wait()

	router.close()
	if err := svc.StopService(); err != nil {
		powdLog.Warnf("Unable to stop the workers: %v", err)
	}
	svc.BlockProver().ShutDown()
	return err
}

// reloadSettings reads the configuration again and passes the changes of the
// worker settings to handle.  The applied settings are recorded in cfg.
func reloadSettings(ctx context.Context, cfg *config, args []string, handle func(context.Context, prover.Event) error) error {
	newCfg, err := reloadConfig(cfg, args)
	if err != nil {
		return err
	}
	if newCfg.CPU != cfg.CPU {
		ev := prover.Event{Type: prover.CPUChanged, CPU: newCfg.CPU}
		if err := handle(ctx, ev); err != nil {
			return err
		}
		powdLog.Infof("CPU usage set to %.0f%%", newCfg.CPU*100)
		cfg.CPU = newCfg.CPU
	}
	if newCfg.Prefix != cfg.Prefix {
		ev := prover.Event{Type: prover.PrefixChanged, Prefix: newCfg.Prefix}
		if err := handle(ctx, ev); err != nil {
			return err
		}
		powdLog.Infof("Nonce prefix set to %d", newCfg.Prefix)
		cfg.Prefix = newCfg.Prefix
	}
	return nil
}

// genNext proves the next block of the node and posts it.  The optional
// argument following the node address is the difficulty, which defaults to the
// personalized difficulty of the key.
func genNext(ctx context.Context, cfg *config, args []string, out io.Writer) error {
	addr, rest, err := nodeAddr(cfg, args)
	if err != nil {
		return err
	}
	var difficulty uint32
	if len(rest) > 0 {
		d, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid difficulty %q", rest[0])
		}
		difficulty = uint32(d)
	}
	client, err := newClient(cfg, addr)
	if err != nil {
		return err
	}
	kp, err := loadKeyPair(cfg, promptSecretKey)
	if err != nil {
		return err
	}
	if kp == nil {
		return errNoKeyPair
	}
	pcfg, chain, err := newProverConfig(ctx, cfg, client, kp)
	if err != nil {
		return err
	}

	var overrides *block.Overrides
	if cfg.At != 0 {
		overrides = &block.Overrides{MedianTime: cfg.At}
	}
	var show io.Writer
	if cfg.Show {
		show = out
	}
	_, err = prover.GenerateAndSend(ctx, pcfg, difficulty, overrides, chain,
		show)
	return err
}

// proveFile proves the JSON block document named by args[0] and writes its
// signed raw form to out.  The optional second argument is the difficulty,
// which defaults to the minimum difficulty of the block.
func proveFile(ctx context.Context, cfg *config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("no block file specified")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var b block.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("malformed block file %s: %w", args[0], err)
	}
	difficulty := b.PowMin
	if len(args) > 1 {
		d, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid difficulty %q", args[1])
		}
		difficulty = uint32(d)
	}
	kp, err := loadKeyPair(cfg, promptSecretKey)
	if err != nil {
		return err
	}
	if kp == nil {
		return errNoKeyPair
	}

	pcfg := &prover.Config{
		KeyPair:       kp,
		CPU:           cfg.CPU,
		Prefix:        cfg.Prefix,
		NbCores:       cfg.NbCores,
		NearMissZeros: cfg.NearMissZeros,
	}
	pcfg.Params.AvgGenTime = cfg.AvgGenTime
	pcfg.Params.MedianTimeBlocks = cfg.MedianTimeBlocks
	pcfg.Params.RootOffset = cfg.RootOffset
	var overrides *block.Overrides
	if cfg.At != 0 {
		overrides = &block.Overrides{Time: cfg.At}
	}
	proven, err := prover.GenerateAndProveTheNext(ctx, pcfg, &b, difficulty,
		overrides)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, proven.RawSigned())
	return err
}

// keygen writes a new random key pair to out in the configuration file
// format.  A nil reader uses crypto/rand.
func keygen(rand io.Reader, out io.Writer) error {
	kp, err := keypair.Generate(rand)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "pub=%s\nsec=%s\n", kp.PublicKey(),
		kp.SecretKey())
	return err
}
