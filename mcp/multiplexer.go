// Package mcp implements the MCP Client Multiplexer (spec §4.2): one
// connection per configured Model-Context-Protocol server, a uniform
// list_tools/call_tool surface over whichever transport the server uses, and
// per-server health tracking so a failing server degrades in isolation.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/internal/telemetry"
	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/tools"
)

// Status describes the connection state of one MCP server.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// ToolInfo describes one tool discovered on a server, for catalog listing.
type ToolInfo struct {
	Server      string
	Name        string
	Ident       tools.Ident
	Description string
	InputSchema any
}

const defaultCallTimeout = 30 * time.Second

// connectTimeout is the per-server handshake and tools/list deadline;
// overridable in tests.
var connectTimeout = 30 * time.Second

// backoffBase governs the exponential reconnect backoff; overridable in tests.
var backoffBase = time.Second

type connection struct {
	name   string
	config ServerConfig

	// mu serializes reconnect and call_tool access for this server only;
	// different servers never contend on the same mutex, matching the
	// per-server mutual exclusion the scheduling model requires.
	mu sync.Mutex

	session  *mcpsdk.ClientSession
	teardown context.CancelFunc
	toolList []*mcpsdk.Tool

	status   Status
	lastErr  error
	failures int
}

// Multiplexer owns one connection per configured server. Its lifetime is
// bound to the session that created it: transports opened here must be torn
// down by calling Close from that same session's scheduling context, never
// from another goroutine or session.
type Multiplexer struct {
	log telemetry.Logger

	mu      sync.RWMutex
	servers map[string]*connection

	catalogMu sync.RWMutex
	catalog   []ToolInfo
}

// New builds an empty Multiplexer. Call Start to connect configured servers.
func New(log telemetry.Logger) *Multiplexer {
	if log == nil {
		log = telemetry.Noop().Log
	}
	return &Multiplexer{log: log, servers: make(map[string]*connection)}
}

// Start connects to every configured server. Per-server failures are logged
// and leave that server StatusDegraded; other servers still start.
func (m *Multiplexer) Start(ctx context.Context, servers map[string]ServerConfig) error {
	for name, cfg := range servers {
		conn := &connection{name: name, config: cfg, status: StatusConnecting}
		m.mu.Lock()
		m.servers[name] = conn
		m.mu.Unlock()

		if err := m.connect(ctx, conn); err != nil {
			conn.mu.Lock()
			conn.status = StatusDegraded
			conn.lastErr = err
			conn.mu.Unlock()
			m.log.Warn("mcp server failed to connect", telemetry.F("server", name), telemetry.F("error", err.Error()))
			continue
		}
	}
	m.rebuildCatalog()
	return nil
}

// newTransport is overridable in tests.
var newTransport = defaultNewTransport

func defaultNewTransport(cfg ServerConfig) (mcpsdk.Transport, context.CancelFunc, error) {
	switch cfg.transportKind() {
	case TransportHTTP:
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, func() {}, nil
	case TransportSSE:
		return newSSETransport(cfg.URL), func() {}, nil
	case TransportStdio:
		if cfg.Command == "" {
			return nil, nil, errs.New(errs.KindTransportError, "mcp.connect", "stdio server requires a command")
		}
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}, nil
	default:
		return nil, nil, errs.Errorf(errs.KindTransportError, "mcp.connect", "unknown transport kind %q", cfg.Type)
	}
}

func (m *Multiplexer) connect(ctx context.Context, conn *connection) error {
	transport, teardown, err := newTransport(conn.config)
	if err != nil {
		return err
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "delegate", Version: "1.0"}, nil)

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	session, err := client.Connect(connCtx, transport, nil)
	if err != nil {
		teardown()
		return errs.Wrap(errs.KindTransportError, "connect", err)
	}

	listCtx, listCancel := context.WithTimeout(ctx, connectTimeout)
	defer listCancel()
	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		_ = session.Close()
		teardown()
		return errs.Wrap(errs.KindTransportError, "list_tools", err)
	}

	conn.mu.Lock()
	conn.session = session
	conn.teardown = teardown
	conn.toolList = result.Tools
	conn.status = StatusConnected
	conn.lastErr = nil
	conn.failures = 0
	conn.mu.Unlock()
	return nil
}

// EnsureConnected reconnects a degraded server with exponential backoff
// derived from its consecutive failure count, returning nil once connected.
func (m *Multiplexer) EnsureConnected(ctx context.Context, server string) error {
	m.mu.RLock()
	conn, ok := m.servers[server]
	m.mu.RUnlock()
	if !ok {
		return errs.Errorf(errs.KindUnknownTool, "mcp.ensure_connected", "server %q not configured", server)
	}

	conn.mu.Lock()
	if conn.status == StatusConnected {
		conn.mu.Unlock()
		return nil
	}
	failures := conn.failures
	conn.mu.Unlock()

	if failures > 0 {
		wait := backoffBase * time.Duration(1<<uint(min(failures-1, 6)))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := m.connect(ctx, conn); err != nil {
		conn.mu.Lock()
		conn.status = StatusDegraded
		conn.lastErr = err
		conn.failures++
		conn.mu.Unlock()
		return err
	}
	m.rebuildCatalog()
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ListAllTools returns the cached catalog built at Start/reload time.
func (m *Multiplexer) ListAllTools() []ToolInfo {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()
	out := make([]ToolInfo, len(m.catalog))
	copy(out, m.catalog)
	return out
}

// ToolDefinitions projects the catalog into model.ToolDefinition for building
// a model Request's Tools field.
func (m *Multiplexer) ToolDefinitions() []*model.ToolDefinition {
	entries := m.ListAllTools()
	defs := make([]*model.ToolDefinition, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, &model.ToolDefinition{
			Name:        string(e.Ident),
			Description: e.Description,
			InputSchema: e.InputSchema,
		})
	}
	return defs
}

// rebuildCatalog recomputes the process-wide tool list from every connected
// server's discovered tools. A tool whose InputSchema does not compile as
// valid JSON Schema is dropped here rather than exposed to the Tool Parser/
// dispatch layer, since CallTool has nothing sane to validate call
// arguments against for it.
func (m *Multiplexer) rebuildCatalog() {
	m.mu.RLock()
	var catalog []ToolInfo
	for name, conn := range m.servers {
		conn.mu.Lock()
		if conn.status == StatusConnected {
			for _, t := range conn.toolList {
				if _, err := tools.CompileInputSchema(t.InputSchema); err != nil {
					m.log.Warn("mcp tool has an invalid input schema, excluding from catalog",
						telemetry.F("server", name), telemetry.F("tool", t.Name), telemetry.F("error", err.Error()))
					continue
				}
				catalog = append(catalog, ToolInfo{
					Server:      name,
					Name:        t.Name,
					Ident:       tools.Ident(NamespacedName(name, t.Name)),
					Description: t.Description,
					InputSchema: t.InputSchema,
				})
			}
		}
		conn.mu.Unlock()
	}
	m.mu.RUnlock()

	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Ident < catalog[j].Ident })

	m.catalogMu.Lock()
	m.catalog = catalog
	m.catalogMu.Unlock()
}

// CallTool invokes a fully qualified "server.tool" identifier and returns its
// serialized text result. isErr reports a server-side tool error (still a
// valid result the executor should feed back to the model); a non-nil error
// return means the call itself could not be carried out (transport failure,
// timeout, unknown server).
func (m *Multiplexer) CallTool(ctx context.Context, ident tools.Ident, args map[string]any) (result string, isErr bool, err error) {
	server, toolName, ok := ParseNamespacedName(string(ident))
	if !ok {
		return "", false, errs.Errorf(errs.KindUnknownTool, "mcp.call_tool", "%q is not a qualified server.tool identifier", ident)
	}

	m.mu.RLock()
	conn, ok := m.servers[server]
	m.mu.RUnlock()
	if !ok {
		return "", false, errs.Errorf(errs.KindUnknownTool, "mcp.call_tool", "server %q not found", server)
	}

	conn.mu.Lock()
	status := conn.status
	session := conn.session
	conn.mu.Unlock()

	if status != StatusConnected || session == nil {
		if err := m.EnsureConnected(ctx, server); err != nil {
			return "", false, errs.Wrap(errs.KindTransportError, "reconnect", err)
		}
		conn.mu.Lock()
		session = conn.session
		conn.mu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	// Per-server mutual exclusion over the request/response correlator:
	// concurrent calls from different tasks share one connection.
	conn.mu.Lock()
	res, callErr := session.CallTool(callCtx, &mcpsdk.CallToolParams{Name: toolName, Arguments: args})
	conn.mu.Unlock()

	if callErr != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", false, errs.Errorf(errs.KindTimeout, "mcp.call_tool", "call to %q timed out after %s", ident, defaultCallTimeout)
		}
		conn.mu.Lock()
		conn.failures++
		conn.status = StatusDegraded
		conn.lastErr = callErr
		conn.mu.Unlock()
		return "", false, errs.Wrap(errs.KindTransportError, "call_tool", callErr)
	}
	if res == nil {
		return "", true, nil
	}

	text := extractText(res.Content)
	return text, res.IsError, nil
}

func extractText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ServerStatuses reports the current connection state of every configured
// server, for health/degradation reporting.
func (m *Multiplexer) ServerStatuses() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.servers))
	for name, conn := range m.servers {
		conn.mu.Lock()
		s := conn.status.String()
		if conn.lastErr != nil {
			s = fmt.Sprintf("%s: %v", s, conn.lastErr)
		}
		conn.mu.Unlock()
		out[name] = s
	}
	return out
}

// Reload disconnects and reconnects every server, rebuilding the tool
// catalog. In-flight CallTool invocations already past the connection lookup
// complete against the connection they captured; only new calls observe the
// rebuilt catalog.
func (m *Multiplexer) Reload(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.servers))
	for _, c := range m.servers {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		conn.mu.Lock()
		if conn.teardown != nil {
			conn.teardown()
		}
		conn.session = nil
		conn.status = StatusConnecting
		conn.mu.Unlock()
		if err := m.connect(ctx, conn); err != nil {
			conn.mu.Lock()
			conn.status = StatusDegraded
			conn.lastErr = err
			conn.mu.Unlock()
			m.log.Warn("mcp server reload failed", telemetry.F("server", conn.name), telemetry.F("error", err.Error()))
		}
	}
	m.rebuildCatalog()
	return nil
}

// Close tears down every server transport. Callers must invoke Close only
// from the same scheduling context (goroutine/session) that called Start —
// never from a different session or a detached goroutine.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.servers {
		conn.mu.Lock()
		if conn.session != nil {
			_ = conn.session.Close()
		}
		if conn.teardown != nil {
			conn.teardown()
		}
		conn.status = StatusDisconnected
		conn.mu.Unlock()
	}
}
