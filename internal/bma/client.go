// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ucoin/powd/internal/block"
)

const (
	// DefaultTimeout is the timeout of a request when none is configured.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody is the maximum number of bytes of an error body kept in
	// error descriptions.
	maxErrorBody = 512
)

// Error codes returned by the node that are mapped to error kinds.
const (
	ucodeNoMatchingIdentity = 2001
	ucodeNoMemberMatching   = 2004
	ucodeNotAMember         = 2009
	ucodeNoCurrentBlock     = 2010
	ucodeNoIdentityMatching = 2021

	notAMemberMsg = "Not a member"
)

// Config describes the node a client talks to.
type Config struct {
	// Host is the host:port of the node API.
	Host string

	// TLS selects https and wss instead of http and ws.
	TLS bool

	// Timeout bounds each HTTP request.  Zero selects DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client used for requests.
	HTTPClient *http.Client
}

// Parameters are the currency parameters of the chain.
type Parameters struct {
	Currency         string  `json:"currency"`
	C                float64 `json:"c"`
	DT               int64   `json:"dt"`
	UD0              uint64  `json:"ud0"`
	SigPeriod        int64   `json:"sigPeriod"`
	SigStock         uint32  `json:"sigStock"`
	SigWindow        int64   `json:"sigWindow"`
	SigValidity      int64   `json:"sigValidity"`
	SigQty           uint32  `json:"sigQty"`
	IdtyWindow       int64   `json:"idtyWindow"`
	MsWindow         int64   `json:"msWindow"`
	XPercent         float64 `json:"xpercent"`
	MsValidity       int64   `json:"msValidity"`
	StepMax          uint32  `json:"stepMax"`
	MedianTimeBlocks uint32  `json:"medianTimeBlocks"`
	AvgGenTime       int64   `json:"avgGenTime"`
	DtDiffEval       uint32  `json:"dtDiffEval"`
	PercentRot       float64 `json:"percentRot"`
	UDTime0          int64   `json:"udTime0"`
	UDReevalTime0    int64   `json:"udReevalTime0"`
	DtReeval         int64   `json:"dtReeval"`
}

// Identity is a written identity of the web of trust.
type Identity struct {
	Pubkey  string `json:"pubkey"`
	UID     string `json:"uid"`
	SigDate string `json:"sigDate"`
}

// Hardship is the personalized difficulty of an issuer for the next block.
type Hardship struct {
	Block uint32 `json:"block"`
	Level uint32 `json:"level"`
}

// Difficulty is the personalized difficulty of one recent issuer.
type Difficulty struct {
	UID   string `json:"uid"`
	Level uint32 `json:"level"`
}

// Difficulties are the personalized difficulties of the recent issuers for the
// next block.
type Difficulties struct {
	Block  uint32       `json:"block"`
	Levels []Difficulty `json:"levels"`
}

// remoteBlock is the JSON form of a block served by the node.  Transactions
// are served as objects and are not carried by block documents here.
type remoteBlock struct {
	block.Block
	Transactions []json.RawMessage `json:"transactions"`
}

// remoteError is the JSON body of an error answered by the node.
type remoteError struct {
	UCode   int    `json:"ucode"`
	Message string `json:"message"`
}

// Client is an HTTP client of the Basic Merkled API of a node.
//
// All methods are safe for concurrent access.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
}

// New returns a client of the node described by cfg.
func New(cfg *Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("no node host specified")
	}
	if _, _, err := net.SplitHostPort(cfg.Host); err != nil {
		return nil, fmt.Errorf("invalid node host %q: %w", cfg.Host, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	scheme, wsScheme := "http", "ws"
	if cfg.TLS {
		scheme, wsScheme = "https", "wss"
	}
	return &Client{
		baseURL: scheme + "://" + cfg.Host,
		wsURL:   wsScheme + "://" + cfg.Host,
		http:    httpClient,
	}, nil
}

// CurrentBlock returns the head of the chain, or nil when the chain has no
// block yet.
func (c *Client) CurrentBlock(ctx context.Context) (*block.Block, error) {
	var rb remoteBlock
	err := c.get(ctx, "/blockchain/current", &rb)
	var rerr Error
	if errors.As(err, &rerr) && rerr.UCode == ucodeNoCurrentBlock {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rb.Block, nil
}

// Block returns the block with the provided number.
func (c *Client) Block(ctx context.Context, number uint32) (*block.Block, error) {
	var rb remoteBlock
	path := "/blockchain/block/" + strconv.FormatUint(uint64(number), 10)
	if err := c.get(ctx, path, &rb); err != nil {
		return nil, err
	}
	return &rb.Block, nil
}

// Blocks returns at most count blocks starting at number from, in ascending
// order.
func (c *Client) Blocks(ctx context.Context, count, from uint32) ([]*block.Block, error) {
	var rbs []remoteBlock
	path := fmt.Sprintf("/blockchain/blocks/%d/%d", count, from)
	if err := c.get(ctx, path, &rbs); err != nil {
		return nil, err
	}
	blocks := make([]*block.Block, 0, len(rbs))
	for i := range rbs {
		blocks = append(blocks, &rbs[i].Block)
	}
	return blocks, nil
}

// Parameters returns the currency parameters of the chain.
func (c *Client) Parameters(ctx context.Context) (*Parameters, error) {
	var params Parameters
	if err := c.get(ctx, "/blockchain/parameters", &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// IdentityOf returns the member identity of the provided public key.  An
// identity that is not a member yields ErrNotMember.
func (c *Client) IdentityOf(ctx context.Context, pubkey string) (*Identity, error) {
	var idty Identity
	path := "/wot/identity-of/" + url.PathEscape(pubkey)
	if err := c.get(ctx, path, &idty); err != nil {
		return nil, err
	}
	return &idty, nil
}

// Hardship returns the personalized difficulty of the provided member for the
// next block.
func (c *Client) Hardship(ctx context.Context, pubkey string) (*Hardship, error) {
	var h Hardship
	path := "/blockchain/hardship/" + url.PathEscape(pubkey)
	if err := c.get(ctx, path, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Difficulties returns the personalized difficulties of the recent issuers.
func (c *Client) Difficulties(ctx context.Context) (*Difficulties, error) {
	var d Difficulties
	if err := c.get(ctx, "/blockchain/difficulties", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PostBlock submits the signed raw form of a proven block and returns the
// block as accepted by the node.
func (c *Client) PostBlock(ctx context.Context, b *block.Block) (*block.Block, error) {
	form := url.Values{"block": {b.RawSigned()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/blockchain/block", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var rb remoteBlock
	if err := c.do(req, &rb); err != nil {
		var rerr Error
		if errors.As(err, &rerr) && errors.Is(rerr.Err, ErrBadResponse) &&
			rerr.UCode != 0 {

			rerr.Err = ErrRejected
			return nil, rerr
		}
		return nil, err
	}
	log.Debugf("Node accepted block #%d %s", rb.Number, rb.Hash)
	return &rb.Block, nil
}

// get requests path and decodes the JSON answer into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, result)
}

// do performs the request and decodes the JSON answer into result.  Error
// answers are mapped to error kinds.
func (c *Client) do(req *http.Request, result any) error {
	log.Tracef("%s %s", req.Method, req.URL)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(req, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		str := fmt.Sprintf("%s %s: malformed answer: %v", req.Method,
			req.URL.Path, err)
		return makeError(ErrBadResponse, str)
	}
	return nil
}

// responseError returns the error matching a non successful answer.
func responseError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var rerr remoteError
	if err := json.Unmarshal(body, &rerr); err != nil || rerr.Message == "" {
		rerr = remoteError{Message: strings.TrimSpace(string(body))}
	}

	kind := ErrBadResponse
	switch {
	case rerr.UCode == ucodeNotAMember, rerr.Message == notAMemberMsg:
		kind = ErrNotMember
	case resp.StatusCode == http.StatusNotFound:
		kind = ErrNotFound
	case rerr.UCode == ucodeNoCurrentBlock,
		rerr.UCode == ucodeNoMatchingIdentity,
		rerr.UCode == ucodeNoIdentityMatching,
		rerr.UCode == ucodeNoMemberMatching:
		kind = ErrNotFound
	}
	str := fmt.Sprintf("%s %s: %s (status %d, ucode %d)", req.Method,
		req.URL.Path, rerr.Message, resp.StatusCode, rerr.UCode)
	return Error{Err: kind, Description: str, UCode: rerr.UCode}
}
