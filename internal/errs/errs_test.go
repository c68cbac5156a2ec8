package errs_test

import (
	"errors"
	"testing"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := errs.Errorf(errs.KindTimeout, "executor.run", "model call exceeded %s", "300s")
	require.Equal(t, errs.KindTimeout, errs.KindOf(err))
	assert.True(t, errors.Is(err, errs.Timeout))
	assert.False(t, errors.Is(err, errs.TransportError))
}

func TestKindOfUnwrapsChain(t *testing.T) {
	inner := errs.New(errs.KindToolArgError, "tools.read_file", "offset must be >= 0")
	outer := errs.Wrap(errs.KindValidationFailure, "validator.check", inner)

	assert.Equal(t, errs.KindValidationFailure, errs.KindOf(outer))
	assert.True(t, errors.Is(outer, errs.ValidationFailure))
	assert.True(t, errors.Is(outer, errs.ToolArgError), "Is should see through to the wrapped cause's kind")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, errs.Kind(""), errs.KindOf(errors.New("plain")))
}
