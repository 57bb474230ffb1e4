// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bma

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ucoin/powd/internal/block"
)

// newFeedClient returns a client of a fake node that pushes msgs on its block
// feed and then either closes the connection or keeps it open.
func newFeedClient(t *testing.T, msgs []string, keepOpen bool) *Client {
	t.Helper()
	var upgrader websocket.Upgrader
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/block", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range msgs {
			err := conn.WriteMessage(websocket.TextMessage, []byte(msg))
			if err != nil {
				return
			}
		}
		if keepOpen {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("unable to parse server url: %v", err)
	}
	c, err := New(&Config{Host: u.Host})
	if err != nil {
		t.Fatalf("unable to create client: %v", err)
	}
	return c
}

// TestSubscribeBlocks ensures pushed blocks are delivered in order and other
// messages are skipped.
func TestSubscribeBlocks(t *testing.T) {
	t.Parallel()

	next := strings.Replace(headJSON, `"hash": "0000AB"`, `"hash": "0000CD"`, 1)
	next = strings.Replace(next, `"number": 34`, `"number": 35`, 1)
	c := newFeedClient(t, []string{headJSON, `{"peer": true}`, "garbage", next},
		false)

	var got []*block.Block
	err := c.SubscribeBlocks(context.Background(), func(b *block.Block) {
		got = append(got, b)
	})
	if err == nil {
		t.Fatal("expected an error once the feed is closed")
	}
	if len(got) != 2 {
		t.Fatalf("unexpected number of blocks %d", len(got))
	}
	if got[0].Stamp() != "34-0000AB" || got[1].Stamp() != "35-0000CD" {
		t.Fatalf("unexpected blocks %s, %s", got[0].Stamp(), got[1].Stamp())
	}
}

// TestSubscribeBlocksCancel ensures the subscription ends with the context.
func TestSubscribeBlocksCancel(t *testing.T) {
	t.Parallel()

	c := newFeedClient(t, []string{headJSON}, true)
	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan struct{}, 1)
	errC := make(chan error, 1)
	go func() {
		errC <- c.SubscribeBlocks(ctx, func(*block.Block) {
			received <- struct{}{}
		})
	}()

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the current head")
	}
	cancel()
	select {
	case err := <-errC:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: got %v, want %v", err,
				context.Canceled)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for the subscription to end")
	}
}

// TestWatchBlocks ensures the feed is subscribed again after a failure.
func TestWatchBlocks(t *testing.T) {
	t.Parallel()

	c := newFeedClient(t, []string{headJSON}, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var heads int
	done := make(chan struct{})
	go func() {
		c.WatchBlocks(ctx, 10*time.Millisecond, func(*block.Block) {
			heads++
			if heads == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for three subscriptions")
	}
	if heads != 3 {
		t.Fatalf("unexpected number of heads %d", heads)
	}
}
