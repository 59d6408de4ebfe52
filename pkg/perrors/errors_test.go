package perrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	err := Parse("unexpected token %q", "}").WithResource("module.pylon").WithOperation("parse")

	require.Error(t, err)
	assert.True(t, IsParse(err))
	assert.False(t, IsIO(err))
	assert.Contains(t, err.Error(), "module.pylon")
	assert.Contains(t, err.Error(), "parse")
}

func TestErrorIsMatchesOnClassAndCode(t *testing.T) {
	err := Structural("dependency cycle").WithCode("CYCLE")

	assert.True(t, errors.Is(err, New(ClassStructural, "")))
	assert.True(t, errors.Is(err, New(ClassStructural, "CYCLE")))
	assert.False(t, errors.Is(err, New(ClassStructural, "OTHER")))
	assert.False(t, errors.Is(err, New(ClassIO, "")))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("disk full")
	wrapped := IO(base)

	assert.Same(t, base, errors.Unwrap(wrapped))
}

func TestClassOfNonClassifiedError(t *testing.T) {
	assert.Equal(t, ClassUnknown, ClassOf(errors.New("plain")))
}
