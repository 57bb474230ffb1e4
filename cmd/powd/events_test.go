// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ucoin/powd/internal/block"
	"github.com/ucoin/powd/internal/prover"
)

// TestHeadRouter ensures heads are passed on in order and classified against
// the previous head.
func TestHeadRouter(t *testing.T) {
	var got []prover.EventType
	var stamps []string
	handle := func(_ context.Context, ev prover.Event) error {
		got = append(got, ev.Type)
		stamps = append(stamps, ev.Block.Stamp())
		if ev.Block.Number == 36 {
			return errors.New("not handled")
		}
		return nil
	}
	r, err := newHeadRouter(context.Background(), handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	heads := []*block.Block{
		{Number: 34, Hash: "0A"},
		{Number: 35, Hash: "0B", PreviousHash: "0A"},
		{Number: 35, Hash: "0B", PreviousHash: "0A"},
		{Number: 35, Hash: "0C", PreviousHash: "0A"},
		{Number: 36, Hash: "0D", PreviousHash: "0C"},
	}
	for _, b := range heads {
		r.publish(b)
	}
	r.close()

	want := []prover.EventType{prover.HeadChanged, prover.HeadChanged,
		prover.HeadChanged, prover.ForkSwitched, prover.HeadChanged}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected events %v, want %v", got, want)
	}
	wantStamps := []string{"34-0A", "35-0B", "35-0B", "35-0C", "36-0D"}
	if !reflect.DeepEqual(stamps, wantStamps) {
		t.Fatalf("unexpected heads %v, want %v", stamps, wantStamps)
	}
}
