// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bma

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ucoin/powd/internal/block"
)

const (
	// handshakeTimeout bounds the websocket opening handshake.
	handshakeTimeout = 10 * time.Second

	// DefaultResubscribeDelay is the delay between two subscription
	// attempts of WatchBlocks when none is provided.
	DefaultResubscribeDelay = 5 * time.Second
)

// SubscribeBlocks opens the block feed of the node and calls handler with
// every block it pushes, starting with the current head, until ctx is done or
// the connection fails.  Messages that do not decode as blocks are skipped.
//
// handler is called from the goroutine running SubscribeBlocks.
func (c *Client) SubscribeBlocks(ctx context.Context, handler func(*block.Block)) error {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL+"/ws/block", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}
	log.Infof("Subscribed to the block feed of %s", c.wsURL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var rb remoteBlock
		if err := json.Unmarshal(msg, &rb); err != nil || rb.Hash == "" {
			log.Debugf("Skipping feed message that is not a block: %.64s", msg)
			continue
		}
		b := rb.Block
		handler(&b)
	}
}

// WatchBlocks keeps a block feed subscription open until ctx is done,
// subscribing again after retry when the connection fails.  A zero retry
// selects DefaultResubscribeDelay.
func (c *Client) WatchBlocks(ctx context.Context, retry time.Duration, handler func(*block.Block)) {
	if retry == 0 {
		retry = DefaultResubscribeDelay
	}
	for {
		err := c.SubscribeBlocks(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		log.Warnf("Block feed of %s lost: %v (retrying in %v)", c.wsURL, err,
			retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
