// Package script holds the Starlark sandbox shared by submission hooks and
// page expressions: bounded threads and conversion of JSON-shaped Go
// values.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// NewThread returns a thread that stops after maxSteps computation steps
// and sends print output to logger at debug level.
func NewThread(name string, maxSteps uint64, logger *zap.Logger) *starlark.Thread {
	if logger == nil {
		logger = zap.NewNop()
	}
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug("starlark print", zap.String("thread", name), zap.String("msg", msg))
		},
	}
	if maxSteps > 0 {
		thread.SetMaxExecutionSteps(maxSteps)
	}
	return thread
}

// Bind cancels thread when ctx is done. The returned func releases the
// watcher and must be called once the thread has finished.
func Bind(ctx context.Context, thread *starlark.Thread) (release func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// ToValue converts a JSON-shaped Go value. Maps become dicts with sorted
// keys so iteration order is stable.
func ToValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return starlark.MakeInt64(int64(v))
		}
		return starlark.Float(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return starlark.MakeInt64(i)
		}
		f, _ := v.Float64()
		return starlark.Float(f)
	case string:
		return starlark.String(v)
	case []string:
		list := make([]starlark.Value, len(v))
		for i, item := range v {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list)
	case []any:
		list := make([]starlark.Value, len(v))
		for i, item := range v {
			list[i] = ToValue(item)
		}
		return starlark.NewList(list)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(v))
		for _, k := range keys {
			dict.SetKey(starlark.String(k), ToValue(v[k]))
		}
		return dict
	default:
		return starlark.String(fmt.Sprint(v))
	}
}

// Text renders a value for display: strings as is, None as empty and
// anything else in Starlark syntax.
func Text(v starlark.Value) string {
	if v == nil || v == starlark.None {
		return ""
	}
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}
