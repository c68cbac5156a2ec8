package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

func TestCompileSchemaAcceptsEmptyOrNilSchema(t *testing.T) {
	resolved, err := compileSchema(nil)
	require.NoError(t, err)
	require.Nil(t, resolved)

	resolved, err = compileSchema(map[string]any{})
	require.NoError(t, err)
	require.Nil(t, resolved)
}

func TestCompileSchemaRejectsMalformedSchema(t *testing.T) {
	_, err := compileSchema(map[string]any{"type": 42})
	require.Error(t, err)
}

func TestValidateArgsAcceptsMatchingInstance(t *testing.T) {
	resolved, err := compileSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	})
	require.NoError(t, err)

	require.NoError(t, validateArgs("tools.test", resolved, map[string]any{"path": "a.txt"}))
}

func TestValidateArgsRejectsMissingRequiredField(t *testing.T) {
	resolved, err := compileSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	})
	require.NoError(t, err)

	err = validateArgs("tools.test", resolved, map[string]any{})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))
}

func TestValidateArgsRejectsWrongType(t *testing.T) {
	resolved, err := compileSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"offset": map[string]any{"type": "integer"}},
	})
	require.NoError(t, err)

	err = validateArgs("tools.test", resolved, map[string]any{"offset": "not a number"})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))
}

func TestDispatchRejectsArgsFailingSchema(t *testing.T) {
	r := NewRegistry()
	tctx := &Context{WorkspaceRoot: t.TempDir()}

	_, err := r.Dispatch(context.Background(), tctx, Ident("read_file"), map[string]any{"path": 123})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))
}

func TestDispatchRejectsMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	tctx := &Context{WorkspaceRoot: t.TempDir()}

	_, err := r.Dispatch(context.Background(), tctx, Ident("read_file"), map[string]any{})
	require.Error(t, err)
	require.Equal(t, errs.KindToolArgError, errs.KindOf(err))
}
