package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// sseTransport implements the legacy MCP HTTP+SSE transport directly against
// net/http: a long-lived GET to the SSE endpoint yields an "endpoint" event
// carrying the POST URI for outgoing JSON-RPC requests, and subsequent
// "message" events carry JSON-RPC responses/notifications, correlated by id.
// The streamable-HTTP transport the SDK ships (mcp.StreamableClientTransport)
// folds both directions into one connection; SSE predates that and keeps
// them split, which is why this has to be hand-rolled.
type sseTransport struct {
	endpoint string
	client   *http.Client
}

func newSSETransport(endpoint string) *sseTransport {
	return &sseTransport{endpoint: endpoint, client: &http.Client{}}
}

// Connect opens the SSE stream and blocks until the server announces its
// POST endpoint, matching mcpsdk.Transport's contract.
func (t *sseTransport) Connect(ctx context.Context) (mcpsdk.Connection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sse: building request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sse: connecting: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("sse: server returned status %d", resp.StatusCode)
	}

	conn := &sseConnection{
		body:     resp.Body,
		client:   t.client,
		incoming: make(chan []byte, 32),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	go conn.pump()

	select {
	case <-conn.ready:
	case <-conn.done:
		return nil, fmt.Errorf("sse: stream closed before endpoint event")
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, fmt.Errorf("sse: timed out waiting for endpoint event")
	}
	return conn, nil
}

// sseConnection is one live SSE session: a read side fed by the background
// pump goroutine parsing the event stream, and a write side that POSTs each
// outgoing message to the server-announced endpoint.
type sseConnection struct {
	body   io.ReadCloser
	client *http.Client

	mu      sync.Mutex
	postURL string

	ready    chan struct{}
	readyOne sync.Once

	incoming chan []byte
	done     chan struct{}
	closeOne sync.Once
	pumpErr  error
}

// pump scans the SSE stream, dispatching "endpoint" events to unblock
// Connect and "message" events to the incoming channel for Read.
func (c *sseConnection) pump() {
	defer close(c.done)
	defer c.body.Close()

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	var data bytes.Buffer

	flush := func() {
		defer func() { event = ""; data.Reset() }()
		if data.Len() == 0 {
			return
		}
		payload := bytes.TrimSuffix(data.Bytes(), []byte("\n"))
		switch event {
		case "endpoint":
			c.mu.Lock()
			c.postURL = strings.TrimSpace(string(payload))
			c.mu.Unlock()
			c.readyOne.Do(func() { close(c.ready) })
		case "message", "":
			select {
			case c.incoming <- append([]byte(nil), payload...):
			case <-c.done:
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(line, "data:"))
			data.WriteByte('\n')
		}
	}
	flush()
	c.pumpErr = scanner.Err()
}

// Read returns the next JSON-RPC message from the event stream.
func (c *sseConnection) Read(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-c.done:
		if c.pumpErr != nil {
			return nil, c.pumpErr
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write POSTs an outgoing JSON-RPC message to the endpoint announced by the
// server's "endpoint" event.
func (c *sseConnection) Write(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	postURL := c.postURL
	c.mu.Unlock()
	if postURL == "" {
		return fmt.Errorf("sse: no endpoint announced yet")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(msg))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sse: post to %s returned status %d", postURL, resp.StatusCode)
	}
	return nil
}

func (c *sseConnection) Close() error {
	c.closeOne.Do(func() { c.body.Close() })
	return nil
}

func (c *sseConnection) SessionID() string { return "" }
