package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs small Starlark scripts hermetically: no
// filesystem, no network, no print output, and a hard wall-clock
// limit. The build core uses it for decisions that are data, not code
// — picking an extern provider for a toolchain, filtering a config
// list — where a full module function would be overkill.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator returns an evaluator with the given wall-clock
// limit per script. A zero timeout gets a conservative default sized
// for selection predicates rather than general computation.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// Evaluate executes script with each input entry predeclared as a
// global. Every non-underscore global the script leaves behind becomes
// an entry in the result's Output map; a global whose value has no Go
// counterpart (a function, say) fails the evaluation. The script runs on the calling
// goroutine; a watchdog cancels the Starlark thread when ctx is done
// or the evaluator's timeout elapses.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	started := time.Now()

	thread := &starlark.Thread{
		Name:  "plywood-select",
		Print: func(*starlark.Thread, string) {},
	}

	watchCtx, stopWatch := context.WithTimeout(ctx, se.timeout)
	defer stopWatch()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		<-watchCtx.Done()
		if watchCtx.Err() == context.DeadlineExceeded || ctx.Err() != nil {
			thread.Cancel("evaluation budget exhausted")
		}
	}()

	predeclared := starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)}
	for name, v := range input {
		sv, err := goToStarlark(v)
		if err != nil {
			stopWatch()
			<-watchDone
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		predeclared[name] = sv
	}

	globals, execErr := starlark.ExecFile(thread, "select.star", script, predeclared)
	stopWatch()
	<-watchDone

	elapsed := time.Since(started)
	if execErr != nil {
		return &StarlarkResult{ExecutionTime: elapsed, Error: execErr.Error()},
			fmt.Errorf("starlark: %w", execErr)
	}

	output := make(map[string]interface{}, len(globals))
	for name, v := range globals {
		if name == "" || name[0] == '_' {
			continue
		}
		gv, err := starlarkToGo(v)
		if err != nil {
			return &StarlarkResult{ExecutionTime: elapsed, Error: err.Error()},
				fmt.Errorf("global %q: %w", name, err)
		}
		output[name] = gv
	}
	return &StarlarkResult{Output: output, ExecutionTime: elapsed}, nil
}

// goToStarlark lifts the small set of Go value shapes the build core
// feeds into scripts (toolchain descriptors, candidate name lists)
// into Starlark values.
func goToStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case []string:
		elems := make([]starlark.Value, len(val))
		for i, s := range val {
			elems[i] = starlark.String(s)
		}
		return starlark.NewList(elems), nil
	case []interface{}:
		elems := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]string:
		d := starlark.NewDict(len(val))
		for k, s := range val {
			if err := d.SetKey(starlark.String(k), starlark.String(s)); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[string]interface{}:
		d := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := goToStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot pass %T to starlark", v)
}

// starlarkToGo lowers a script result back to plain Go values. Tuples
// come back as slices; structs and dicts as string-keyed maps.
func starlarkToGo(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer result out of int64 range")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case *starlark.List:
		out := make([]interface{}, val.Len())
		for i := range out {
			item, err := starlarkToGo(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, len(val))
		for i, item := range val {
			gv, err := starlarkToGo(item)
			if err != nil {
				return nil, err
			}
			out[i] = gv
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, pair := range val.Items() {
			key, ok := pair[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", pair[0].Type())
			}
			gv, err := starlarkToGo(pair[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = gv
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			gv, err := starlarkToGo(attr)
			if err != nil {
				return nil, err
			}
			out[name] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot return %s from starlark", v.Type())
}
