// Package hook runs per-form Starlark validation scripts against a
// submission before it is stored.
//
// A hook script defines validate(data, metadata). Returning None, an empty
// dict, an empty list, an empty string or True accepts the submission.
// A non-empty dict maps field names to messages, a non-empty list or a
// string holds messages, and False rejects without detail.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/script"
)

const (
	DefaultTimeout  = 2 * time.Second
	DefaultMaxSteps = 100000

	entryPoint = "validate"
	filename   = "hook.star"
)

// RejectedError reports a submission the hook refused.
type RejectedError struct {
	// Fields maps field names to messages when the hook returned a dict.
	Fields   map[string]string
	Messages []string
}

func (e *RejectedError) Error() string {
	if len(e.Messages) == 0 {
		return "submission rejected"
	}
	return "submission rejected: " + strings.Join(e.Messages, "; ")
}

// Config bounds hook execution.
type Config struct {
	Timeout  time.Duration
	MaxSteps uint64
}

// Runner executes hook scripts.
type Runner struct {
	timeout  time.Duration
	maxSteps uint64
	logger   *zap.Logger
}

// New returns a Runner. Zero config values take the defaults.
func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{timeout: cfg.Timeout, maxSteps: cfg.MaxSteps, logger: logger}
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"json": starlarkjson.Module,
	}
}

// load executes the script's top level and returns its validate function.
func (r *Runner) load(thread *starlark.Thread, src string) (starlark.Callable, error) {
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("hook script error: %w", err)
	}

	val, ok := globals[entryPoint]
	if !ok {
		return nil, fmt.Errorf("hook script must define a '%s' function", entryPoint)
	}
	fn, ok := val.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s must be a function", entryPoint)
	}
	return fn, nil
}

// Check compiles src and verifies it defines validate. An empty script
// is valid and accepts everything.
func (r *Runner) Check(src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	_, err := r.load(script.NewThread("hook-check", r.maxSteps, r.logger), src)
	return err
}

// Validate runs src against a submission. It returns nil when the
// submission is accepted, *RejectedError when the hook refuses it and any
// other error when the script itself fails.
func (r *Runner) Validate(ctx context.Context, src string, data, metadata json.RawMessage) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	thread := script.NewThread("hook", r.maxSteps, r.logger)
	defer script.Bind(ctx, thread)()

	fn, err := r.load(thread, src)
	if err != nil {
		return err
	}

	dataVal, err := decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode submission data: %w", err)
	}
	metaVal, err := decode(metadata)
	if err != nil {
		return fmt.Errorf("failed to decode submission metadata: %w", err)
	}

	start := time.Now()
	result, err := starlark.Call(thread, fn, starlark.Tuple{dataVal, metaVal}, nil)
	r.logger.Debug("hook finished",
		zap.Duration("duration", time.Since(start)),
		zap.Uint64("steps", thread.ExecutionSteps()))
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return fmt.Errorf("%s error: %s", entryPoint, evalErr.Backtrace())
		}
		return fmt.Errorf("%s error: %w", entryPoint, err)
	}

	return verdict(result)
}

func verdict(v starlark.Value) error {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		if v {
			return nil
		}
		return &RejectedError{}
	case starlark.String:
		if v == "" {
			return nil
		}
		return &RejectedError{Messages: []string{string(v)}}
	case *starlark.Dict:
		if v.Len() == 0 {
			return nil
		}
		rej := &RejectedError{Fields: make(map[string]string, v.Len())}
		for _, item := range v.Items() {
			rej.Fields[script.Text(item[0])] = script.Text(item[1])
		}
		keys := make([]string, 0, len(rej.Fields))
		for k := range rej.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rej.Messages = append(rej.Messages, k+": "+rej.Fields[k])
		}
		return rej
	case starlark.Indexable:
		if v.Len() == 0 {
			return nil
		}
		rej := &RejectedError{}
		for i := 0; i < v.Len(); i++ {
			rej.Messages = append(rej.Messages, script.Text(v.Index(i)))
		}
		return rej
	default:
		return fmt.Errorf("%s returned %s; want None, dict, list, string or bool", entryPoint, v.Type())
	}
}

func decode(raw json.RawMessage) (starlark.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return starlark.NewDict(0), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return script.ToValue(v), nil
}
