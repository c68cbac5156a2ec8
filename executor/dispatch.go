package executor

import (
	"context"
	"fmt"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/mcp"
	"github.com/kairoslabs/delegate/tools"
)

// dispatcher is the uniform two-return dispatch surface the executor loop
// calls for every tool, whether it resolves to a built-in or an MCP tool.
type dispatcher interface {
	Dispatch(ctx context.Context, ident tools.Ident, args map[string]any) (string, error)
}

// builtinDispatcher adapts *tools.Registry, which needs a *tools.Context
// alongside every call, to the narrower dispatcher interface.
type builtinDispatcher struct {
	registry *tools.Registry
	tctx     *tools.Context
}

func (d *builtinDispatcher) Dispatch(ctx context.Context, ident tools.Ident, args map[string]any) (string, error) {
	return d.registry.Dispatch(ctx, d.tctx, ident, args)
}

// muxDispatcher adapts *mcp.Multiplexer's three-return CallTool (result,
// isErr, err) to the dispatcher shape: a tool-level failure (isErr) is
// folded into the result string the model sees next turn, the same way a
// built-in handler reports failure as "ok/err" text rather than a Go
// error; only a transport-level failure surfaces as err here.
type muxDispatcher struct {
	mux *mcp.Multiplexer
}

func (d *muxDispatcher) Dispatch(ctx context.Context, ident tools.Ident, args map[string]any) (string, error) {
	result, isErr, err := d.mux.CallTool(ctx, ident, args)
	if err != nil {
		return "", err
	}
	if isErr {
		return fmt.Sprintf("error: %s", result), nil
	}
	return result, nil
}

// compositeDispatcher routes a call to the built-in registry or the MCP
// multiplexer by the identifier's namespace, giving the executor loop one
// dispatch call regardless of which catalog a tool came from.
type compositeDispatcher struct {
	builtin dispatcher
	mcp     dispatcher
}

func (d *compositeDispatcher) Dispatch(ctx context.Context, ident tools.Ident, args map[string]any) (string, error) {
	if ident.Builtin() {
		return d.builtin.Dispatch(ctx, ident, args)
	}
	if d.mcp == nil {
		return "", errs.Errorf(errs.KindUnknownTool, "executor.dispatch", "no MCP multiplexer configured for server tool %q", ident)
	}
	return d.mcp.Dispatch(ctx, ident, args)
}
