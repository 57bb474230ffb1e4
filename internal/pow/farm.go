// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pow

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
)

// DefaultCPU is the share of CPU time workers spend hashing when none is
// configured.
const DefaultCPU = 0.6

// nearMissRegexp matches hashes worth reporting as near misses.
var nearMissRegexp = regexp.MustCompile(`^(0{2,})[^0]`)

// NotificationType represents the type of a notification message.
type NotificationType int

// Constants for the type of a notification message.
const (
	// NTNearMiss indicates a worker computed a hash with at least two
	// leading zeros that does not satisfy the target.
	NTNearMiss NotificationType = iota

	// NTFound indicates a search found a proof.
	NTFound

	// NTWorkerError indicates a worker hit an error it recovered from.
	NTWorkerError
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTNearMiss:    "NTNearMiss",
	NTFound:       "NTFound",
	NTWorkerError: "NTWorkerError",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification describes progress of a search.  Zeros is the number of
// leading zeros of Hash.  Err is only set for NTWorkerError.
type Notification struct {
	Type   NotificationType
	Hash   string
	Zeros  int
	Number uint32
	Nonce  uint64
	Issuer string
	Err    error
}

// FarmConfig is a descriptor containing the worker farm configuration.
type FarmConfig struct {
	// NbWorkers is the number of worker goroutines searching in parallel.
	NbWorkers int

	// CPU is the share of each turn workers spend hashing, in (0, 1].
	CPU float64

	// Prefix is the nonce prefix of the node, from 0 to MaxPrefix.
	Prefix uint64

	// PowState, when set, is checked by the workers between turns so they
	// stop by themselves once their candidate is stale.
	PowState HeadStamper

	// Notify is called with near misses, found proofs and worker errors.
	// It is called from worker goroutines and must not block.
	Notify func(*Notification)
}

// Settings are the live tunables of a farm.
type Settings struct {
	CPU    float64
	Prefix uint64
}

// FarmState is the state of the search of a farm.
type FarmState int

// Constants for the states of a farm.
const (
	FarmIdle FarmState = iota
	FarmSearching
	FarmCancelling
)

// String returns the FarmState in human-readable form.
func (s FarmState) String() string {
	switch s {
	case FarmIdle:
		return "idle"
	case FarmSearching:
		return "searching"
	case FarmCancelling:
		return "cancelling"
	}
	return fmt.Sprintf("unknown farm state (%d)", int(s))
}

// Farm runs proof searches on a pool of worker goroutines, one search at a
// time.  The pool is spawned on the first search and lives until ShutDown.
type Farm struct {
	nbWorkers int
	powState  HeadStamper
	notifyFn  func(*Notification)

	cpuBits atomic.Uint64
	prefix  atomic.Uint64

	mtx      sync.Mutex
	state    FarmState
	shutDown bool
	cancel   context.CancelFunc
	done     chan struct{}
	eng      *engine
}

// NewFarm returns a farm for the provided configuration.  No worker is spawned
// until the first proof is requested.
func NewFarm(cfg *FarmConfig) (*Farm, error) {
	if cfg.NbWorkers < 1 {
		str := fmt.Sprintf("the number of workers must be positive, got %d",
			cfg.NbWorkers)
		return nil, makeError(ErrInvalidConfig, str)
	}
	cpu := cfg.CPU
	if cpu == 0 {
		cpu = DefaultCPU
	}
	if err := checkSettings(cpu, cfg.Prefix); err != nil {
		return nil, err
	}
	f := &Farm{
		nbWorkers: cfg.NbWorkers,
		powState:  cfg.PowState,
		notifyFn:  cfg.Notify,
	}
	f.cpuBits.Store(math.Float64bits(cpu))
	f.prefix.Store(cfg.Prefix)
	return f, nil
}

func checkSettings(cpu float64, prefix uint64) error {
	if !(cpu > 0 && cpu <= 1) {
		str := fmt.Sprintf("cpu share %v is not in (0, 1]", cpu)
		return makeError(ErrInvalidConfig, str)
	}
	if prefix > MaxPrefix {
		str := fmt.Sprintf("nonce prefix %d is greater than %d", prefix,
			MaxPrefix)
		return makeError(ErrInvalidConfig, str)
	}
	return nil
}

// CPU returns the share of each turn workers spend hashing.
func (f *Farm) CPU() float64 {
	return math.Float64frombits(f.cpuBits.Load())
}

// Configure updates the provided settings and returns the applied ones.  Nil
// arguments keep their current value.  A CPU change is picked up by running
// workers at their next turn while a prefix change applies to the next
// search.
//
// This function is safe for concurrent access.
func (f *Farm) Configure(cpu *float64, prefix *uint64) (Settings, error) {
	applied := Settings{CPU: f.CPU(), Prefix: f.prefix.Load()}
	if cpu != nil {
		applied.CPU = *cpu
	}
	if prefix != nil {
		applied.Prefix = *prefix
	}
	if err := checkSettings(applied.CPU, applied.Prefix); err != nil {
		return Settings{}, err
	}
	f.cpuBits.Store(math.Float64bits(applied.CPU))
	f.prefix.Store(applied.Prefix)
	log.Debugf("Farm configured with cpu %.2f and prefix %d", applied.CPU,
		applied.Prefix)
	return applied, nil
}

// NbWorkers returns the number of workers of the farm.
func (f *Farm) NbWorkers() int {
	return f.nbWorkers
}

// State returns the current state of the farm.
func (f *Farm) State() FarmState {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.state
}

// IsComputing reports whether a search is in progress, including one that is
// being canceled.
func (f *Farm) IsComputing() bool {
	return f.State() != FarmIdle
}

// IsStopping reports whether a search is being canceled.
func (f *Farm) IsStopping() bool {
	return f.State() == FarmCancelling
}

// AskNewProof searches a proof for the request.  A search already in progress
// is canceled first and awaited, so that at most one search runs at any time.
// ErrCanceled is returned when the search is canceled, either through Cancel,
// a newer request, ctx or the workers noticing the candidate is stale.
//
// This function is safe for concurrent access.
func (f *Farm) AskNewProof(ctx context.Context, req *Request) (*Result, error) {
	f.mtx.Lock()
	for {
		if f.shutDown {
			f.mtx.Unlock()
			return nil, makeError(ErrFarmShutDown, "the worker farm is shut down")
		}
		if f.state == FarmIdle {
			break
		}
		if f.state == FarmSearching {
			log.Debugf("Canceling the current search for a new one")
			f.state = FarmCancelling
			f.cancel()
		}
		done := f.done
		f.mtx.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, makeError(ErrCanceled, "proof request canceled "+
				"while waiting for the previous search to stop")
		}
		f.mtx.Lock()
	}

	if f.eng == nil {
		f.eng = newEngine(f.nbWorkers, f.CPU, f.notify, f.powState)
	}
	searchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.state = FarmSearching
	f.cancel = cancel
	f.done = done
	eng := f.eng
	prefix := ScalePrefix(f.prefix.Load())
	f.mtx.Unlock()

	res, err := eng.prove(searchCtx, req, prefix)
	cancel()

	f.mtx.Lock()
	f.state = FarmIdle
	f.cancel = nil
	close(done)
	f.mtx.Unlock()

	if err != nil {
		return nil, err
	}
	b := res.Block
	f.notify(&Notification{
		Type:   NTFound,
		Hash:   b.Hash,
		Number: b.Number,
		Nonce:  b.Nonce,
		Issuer: b.Issuer,
	})
	return res, nil
}

// Cancel stops the search in progress, if any, and returns once every worker
// acknowledged the stop.  It is a no-op when the farm is idle.
//
// This function is safe for concurrent access.
func (f *Farm) Cancel() {
	f.mtx.Lock()
	if f.state == FarmSearching {
		log.Debugf("Canceling the work of %d workers", f.nbWorkers)
		f.state = FarmCancelling
		f.cancel()
	}
	state, done := f.state, f.done
	f.mtx.Unlock()

	if state != FarmIdle {
		<-done
	}
}

// ShutDown cancels the search in progress and terminates the worker pool.
// Any later request fails with ErrFarmShutDown.
//
// This function is safe for concurrent access.
func (f *Farm) ShutDown() {
	f.mtx.Lock()
	if f.shutDown {
		f.mtx.Unlock()
		return
	}
	f.shutDown = true
	if f.state == FarmSearching {
		f.state = FarmCancelling
		f.cancel()
	}
	state, done, eng := f.state, f.done, f.eng
	f.eng = nil
	f.mtx.Unlock()

	if state != FarmIdle {
		<-done
	}
	if eng != nil {
		eng.stop()
		log.Debugf("Worker farm shut down")
	}
}

// notify filters notifications before handing them to the configured
// callback.  Only near misses with at least two leading zeros are forwarded.
func (f *Farm) notify(n *Notification) {
	switch n.Type {
	case NTWorkerError:
		log.Errorf("Error in worker farm: %v", n.Err)
	case NTNearMiss:
		m := nearMissRegexp.FindStringSubmatch(n.Hash)
		if m == nil {
			return
		}
		n.Zeros = len(m[1])
	default:
		n.Zeros = LeadingZeros(n.Hash)
	}
	if f.notifyFn != nil {
		f.notifyFn(n)
	}
}
