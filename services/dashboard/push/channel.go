// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package push maintains a long-lived server-push connection with
// automatic reconnect-with-delay on failure.
//
// # State machine
//
//	disconnected --open--> connecting --ready--> connected
//	connecting|connected --error--> disconnected (+ scheduled reconnect)
//	* --close--> disconnected (reconnect cancelled)
//
// Open is idempotent: calling it while connecting or connected is a
// no-op, and at most one physical connection attempt is active at a
// time. The reconnect timer lives inside the channel's own state; the
// only external controls are Open and Close.
package push

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/AleutianAI/komorebi/services/dashboard/datatypes"
)

// DefaultReconnectDelay is the pause between a connection loss and the
// next attempt.
const DefaultReconnectDelay = 5 * time.Second

// State is the connection state of a Channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives each parsed push event, strictly in arrival order.
type Handler func(ev datatypes.PushEvent)

// Transport produces the raw push stream. Implementations return a
// reader delivering SSE-framed or record-delimited JSON messages; the
// channel owns closing it.
type Transport interface {
	Connect(ctx context.Context) (io.ReadCloser, error)
}

// HTTPClient is the subset of *http.Client the SSE transport needs,
// injectable for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SSETransport connects to a Komorebi SSE endpoint.
//
// The client must not have a request timeout; the stream is expected
// to stay open indefinitely.
type SSETransport struct {
	URL    string
	Client HTTPClient
}

// Connect opens the event stream. A non-2xx status is an error.
func (t *SSETransport) Connect(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := t.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect sse: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("sse endpoint returned status %s", resp.Status)
	}
	return resp.Body, nil
}

// Options configures a Channel.
type Options struct {
	// ReconnectDelay overrides DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// Logger for dropped payloads and connection transitions. Defaults
	// to slog.Default().
	Logger *slog.Logger

	// OnStateChange, if set, is invoked synchronously on every state
	// transition. It must not call back into the channel.
	OnStateChange func(State)
}

// Channel is the push connection state machine.
type Channel struct {
	transport Transport
	handler   Handler
	delay     time.Duration
	logger    *slog.Logger
	onState   func(State)

	state atomic.Int32

	mu        sync.Mutex
	closed    bool
	gen       int
	reconnect *time.Timer
	cancel    context.CancelFunc
}

// NewChannel creates a channel in the disconnected state. Nothing
// connects until Open is called.
func NewChannel(transport Transport, handler Handler, opts *Options) *Channel {
	ch := &Channel{
		transport: transport,
		handler:   handler,
		delay:     DefaultReconnectDelay,
		logger:    slog.Default(),
	}
	if opts != nil {
		if opts.ReconnectDelay > 0 {
			ch.delay = opts.ReconnectDelay
		}
		if opts.Logger != nil {
			ch.logger = opts.Logger
		}
		ch.onState = opts.OnStateChange
	}
	return ch
}

// State returns the current connection state.
func (ch *Channel) State() State {
	return State(ch.state.Load())
}

// Open starts connecting. Calling it while already connecting or
// connected is a no-op; repeated calls never produce parallel
// connections. Open after Close re-enables automatic reconnection.
func (ch *Channel) Open() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.closed = false
	if ch.reconnect != nil {
		// A manual open supersedes the pending retry.
		ch.reconnect.Stop()
		ch.reconnect = nil
	}
	if ch.State() != StateDisconnected {
		return
	}
	ch.startLocked()
}

// Close tears the connection down and cancels any pending reconnect.
// No automatic reconnection occurs until Open is called again.
func (ch *Channel) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.closed = true
	if ch.reconnect != nil {
		ch.reconnect.Stop()
		ch.reconnect = nil
	}
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	// Invalidate the running read loop so its exit is ignored.
	ch.gen++
	ch.setState(StateDisconnected)
}

// startLocked begins a connection attempt. Caller holds ch.mu.
func (ch *Channel) startLocked() {
	ch.gen++
	gen := ch.gen

	ctx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel
	ch.setState(StateConnecting)

	go ch.run(ctx, gen)
}

// run performs one connection attempt and the subsequent read loop.
func (ch *Channel) run(ctx context.Context, gen int) {
	body, err := ch.transport.Connect(ctx)
	if err != nil {
		ch.logger.Debug("push connect failed", "error", err)
		ch.onDisconnect(gen)
		return
	}

	ch.mu.Lock()
	if gen != ch.gen || ch.closed {
		ch.mu.Unlock()
		body.Close()
		return
	}
	ch.setState(StateConnected)
	ch.mu.Unlock()

	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		ch.handleLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		ch.logger.Debug("push stream ended", "error", err)
	}
	ch.onDisconnect(gen)
}

// handleLine parses one line of the stream. Empty lines and comment
// keepalives are valid and ignored; a malformed payload is logged and
// dropped, never fatal to the channel.
func (ch *Channel) handleLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return
	}

	payload := line
	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		payload = strings.TrimSpace(rest)
	} else if !strings.HasPrefix(line, "{") {
		// Other SSE fields (event:, id:, retry:) carry no payload.
		return
	}
	if payload == "" {
		return
	}

	var ev datatypes.PushEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		ch.logger.Warn("dropping malformed push payload", "error", err)
		return
	}
	if ch.handler != nil {
		ch.handler(ev)
	}
}

// onDisconnect records the loss and schedules the retry, unless the
// loop is stale or an explicit close happened.
func (ch *Channel) onDisconnect(gen int) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if gen != ch.gen {
		return
	}
	ch.cancel = nil
	ch.setState(StateDisconnected)
	if ch.closed {
		return
	}

	ch.reconnect = time.AfterFunc(ch.delay, func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		ch.reconnect = nil
		if ch.closed || ch.State() != StateDisconnected {
			return
		}
		ch.startLocked()
	})
}

// setState publishes a state transition. Caller holds ch.mu (or is the
// constructor).
func (ch *Channel) setState(s State) {
	if State(ch.state.Swap(int32(s))) == s {
		return
	}
	if ch.onState != nil {
		ch.onState(s)
	}
}
