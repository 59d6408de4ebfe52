package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStarlarkProviderSelection(t *testing.T) {
	// The shape pkg/extern.StarlarkSelect drives: a names list in, a
	// `selected` global out.
	script := `
prefer = "libpng.prebuilt"
selected = prefer if prefer in names else names[0]
`
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), script, map[string]interface{}{
		"names": []string{"libpng.source", "libpng.prebuilt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "libpng.prebuilt", result.Output["selected"])
}

func TestStarlarkToolchainInput(t *testing.T) {
	script := `
selected = "msvc" if toolchain["platform"] == "windows" else "gcc"
`
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), script, map[string]interface{}{
		"toolchain": map[string]string{"platform": "windows", "arch": "x64"},
	})
	require.NoError(t, err)
	assert.Equal(t, "msvc", result.Output["selected"])
}

func TestStarlarkUnderscoreGlobalsAreInternal(t *testing.T) {
	script := `
_scratch = [x * 2 for x in range(4)]
def _sum(xs):
    t = 0
    for x in xs:
        t += x
    return t
total = _sum(_scratch)
`
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.Output["total"])
	assert.NotContains(t, result.Output, "_scratch")
}

func TestStarlarkStructOutput(t *testing.T) {
	script := `
choice = struct(name = "zlib.system", pinned = True)
`
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), script, nil)
	require.NoError(t, err)
	choice, ok := result.Output["choice"].(map[string]interface{})
	require.True(t, ok, "struct results convert to string-keyed maps")
	assert.Equal(t, "zlib.system", choice["name"])
	assert.Equal(t, true, choice["pinned"])
}

func TestStarlarkSyntaxErrorSurfaces(t *testing.T) {
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), "selected = ", nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Error)
}

func TestStarlarkInfiniteLoopIsCancelled(t *testing.T) {
	// Starlark rejects top-level loops, so the runaway loop lives in a
	// function for the script to actually start running.
	script := `
def spin():
    n = 0
    for i in range(1 << 40):
        n += 1
    return n
n = spin()
`
	eval := NewStarlarkEvaluator(100 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := eval.Evaluate(context.Background(), script, nil)
		assert.Error(t, err)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("runaway script was not cancelled")
	}
}

func TestStarlarkContextCancellation(t *testing.T) {
	script := `
def spin():
    n = 0
    for i in range(1 << 40):
        n += 1
    return n
n = spin()
`
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	eval := NewStarlarkEvaluator(time.Minute)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := eval.Evaluate(ctx, script, nil)
		assert.Error(t, err)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("context cancellation did not stop the script")
	}
}

func TestStarlarkRejectsUnsupportedInput(t *testing.T) {
	eval := NewStarlarkEvaluator(0)
	_, err := eval.Evaluate(context.Background(), "x = 1", map[string]interface{}{
		"bad": struct{ X int }{1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `input "bad"`)
}

func TestStarlarkExecutionTimeRecorded(t *testing.T) {
	eval := NewStarlarkEvaluator(0)
	result, err := eval.Evaluate(context.Background(), "x = 1", nil)
	require.NoError(t, err)
	assert.Greater(t, result.ExecutionTime, time.Duration(0))
}
