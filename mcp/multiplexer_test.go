package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/internal/telemetry"
	"github.com/kairoslabs/delegate/tools"
)

func setupInMemoryServer(t *testing.T, serverName string, mcpTools []*mcpsdk.Tool, handlers map[string]mcpsdk.ToolHandler) (*Multiplexer, func()) {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-server", Version: "1.0"}, nil)
	for _, tool := range mcpTools {
		handler := handlers[tool.Name]
		if handler == nil {
			handler = func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}}}, nil
			}
		}
		server.AddTool(tool, handler)
	}

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	origTransport := newTransport
	newTransport = func(cfg ServerConfig) (mcpsdk.Transport, context.CancelFunc, error) {
		return clientTransport, func() {}, nil
	}

	mux := New(telemetry.NoopLogger{})
	err = mux.Start(ctx, map[string]ServerConfig{serverName: {Type: TransportStdio, Command: "unused"}})
	require.NoError(t, err)

	return mux, func() {
		mux.Close()
		serverSession.Close()
		newTransport = origTransport
	}
}

func TestMultiplexerDiscoversNamespacedTools(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{
		{
			Name:        "read_file",
			Description: "Read a file",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
		},
	}
	mux, cleanup := setupInMemoryServer(t, "fs", toolDefs, nil)
	defer cleanup()

	all := mux.ListAllTools()
	require.Len(t, all, 1)
	require.Equal(t, tools.Ident("fs.read_file"), all[0].Ident)

	statuses := mux.ServerStatuses()
	require.Equal(t, "connected", statuses["fs"])
}

func TestMultiplexerCallToolRoundTrips(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{
		{Name: "echo", Description: "Echo input", InputSchema: map[string]any{"type": "object"}},
	}
	handlers := map[string]mcpsdk.ToolHandler{
		"echo": func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			var args map[string]any
			_ = json.Unmarshal(req.Params.Arguments, &args)
			msg, _ := args["message"].(string)
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "echo: " + msg}}}, nil
		},
	}
	mux, cleanup := setupInMemoryServer(t, "echo-svc", toolDefs, handlers)
	defer cleanup()

	result, isErr, err := mux.CallTool(context.Background(), "echo-svc.echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	require.False(t, isErr)
	require.Equal(t, "echo: hello", result)
}

func TestMultiplexerCallToolUnqualifiedNameRejected(t *testing.T) {
	mux := New(telemetry.NoopLogger{})
	_, _, err := mux.CallTool(context.Background(), "read_file", nil)
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownTool, errs.KindOf(err))
}

func TestMultiplexerCallToolUnknownServer(t *testing.T) {
	mux := New(telemetry.NoopLogger{})
	_, _, err := mux.CallTool(context.Background(), "ghost.tool", nil)
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownTool, errs.KindOf(err))
}

func TestMultiplexerServerErrorResult(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{
		{Name: "fail", Description: "Always fails", InputSchema: map[string]any{"type": "object"}},
	}
	handlers := map[string]mcpsdk.ToolHandler{
		"fail": func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "boom"}}, IsError: true}, nil
		},
	}
	mux, cleanup := setupInMemoryServer(t, "svc", toolDefs, handlers)
	defer cleanup()

	result, isErr, err := mux.CallTool(context.Background(), "svc.fail", nil)
	require.NoError(t, err)
	require.True(t, isErr)
	require.Equal(t, "boom", result)
}

func TestMultiplexerCloseDisconnectsAllServers(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{{Name: "ping", Description: "Ping", InputSchema: map[string]any{"type": "object"}}}
	mux, cleanup := setupInMemoryServer(t, "svc", toolDefs, nil)
	defer cleanup()

	require.Equal(t, "connected", mux.ServerStatuses()["svc"])
	mux.Close()
	require.Equal(t, "disconnected", mux.ServerStatuses()["svc"])
}

func TestMultiplexerToolDefinitionsProjectsModelShape(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{
		{Name: "greet", Description: "Greet someone", InputSchema: map[string]any{"type": "object"}},
	}
	mux, cleanup := setupInMemoryServer(t, "greeter", toolDefs, nil)
	defer cleanup()

	defs := mux.ToolDefinitions()
	require.Len(t, defs, 1)
	require.Equal(t, "greeter.greet", defs[0].Name)
	require.Equal(t, "Greet someone", defs[0].Description)
}

func TestMultiplexerEnsureConnectedNoopsWhenAlreadyConnected(t *testing.T) {
	toolDefs := []*mcpsdk.Tool{{Name: "ping", Description: "Ping", InputSchema: map[string]any{"type": "object"}}}
	mux, cleanup := setupInMemoryServer(t, "svc", toolDefs, nil)
	defer cleanup()

	require.NoError(t, mux.EnsureConnected(context.Background(), "svc"))
}

func TestMultiplexerEnsureConnectedUnknownServer(t *testing.T) {
	mux := New(telemetry.NoopLogger{})
	err := mux.EnsureConnected(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownTool, errs.KindOf(err))
}

func TestMultiplexerCallToolUnavailableServerSurfacesTransportError(t *testing.T) {
	mux := New(telemetry.NoopLogger{})
	mux.servers["broken"] = &connection{
		name:    "broken",
		status:  StatusDegraded,
		lastErr: fmt.Errorf("connection refused"),
	}
	_, _, err := mux.CallTool(context.Background(), "broken.tool", nil)
	require.Error(t, err)
}
