// Package page expands host page content: [basicform] shortcodes become
// rendered forms and {{ expr }} tags are evaluated as Starlark expressions
// over the page variables.
package page

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/script"
)

const (
	defaultTimeout  = 2 * time.Second
	defaultMaxSteps = 10000
)

// Loader returns the stored config of a form.
type Loader func(ctx context.Context, formID string) (config string, err error)

// Options configure Render.
type Options struct {
	Variables map[string]any
	Loader    Loader
	// Form is the base render configuration of every embedded form.
	// Shortcode attributes prefill and label override it per form.
	Form render.Options
	// ActionPrefix, when set, makes each form post to ActionPrefix+formID.
	ActionPrefix string
	// Sanitize passes literal page text through a user-content policy.
	// Generated form markup is never sanitized.
	Sanitize bool
	Timeout  time.Duration
	MaxSteps uint64
	Logger   *zap.Logger
}

// Render expands content.
func Render(ctx context.Context, content string, opts Options) (string, error) {
	nodes, err := parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxSteps == 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	thread := script.NewThread("page", opts.MaxSteps, opts.Logger)
	defer script.Bind(ctx, thread)()

	env := make(starlark.StringDict, len(opts.Variables))
	for k, v := range opts.Variables {
		env[k] = script.ToValue(v)
	}

	var policy *bluemonday.Policy
	if opts.Sanitize {
		policy = bluemonday.UGCPolicy()
	}

	var b strings.Builder
	for _, n := range nodes {
		switch n.typ {
		case nodeText:
			if policy != nil {
				b.WriteString(policy.Sanitize(n.text))
			} else {
				b.WriteString(n.text)
			}

		case nodeExpr:
			v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "page", n.text, env)
			if err != nil {
				return "", fmt.Errorf("error evaluating %s: %w", n.text, err)
			}
			b.WriteString(html.EscapeString(script.Text(v)))

		case nodeShortcode:
			out, err := renderShortcode(ctx, n.attrs, opts)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
		}
	}

	return b.String(), nil
}

func renderShortcode(ctx context.Context, attrs map[string]string, opts Options) (string, error) {
	formID := attrs["schema"]
	if formID == "" {
		formID = attrs["id"]
	}
	if formID == "" {
		return "", fmt.Errorf("shortcode is missing the schema attribute")
	}
	if opts.Loader == nil {
		return "", fmt.Errorf("no form loader configured")
	}

	config, err := opts.Loader(ctx, formID)
	if err != nil {
		return "", err
	}

	ro := opts.Form
	if opts.ActionPrefix != "" {
		ro.Action = opts.ActionPrefix + url.PathEscape(formID)
	}
	if v, ok := attrs["prefill"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return "", fmt.Errorf("invalid prefill %q for form %s", v, formID)
		}
		ro.Prefill = n
	}
	if v, ok := attrs["label"]; ok {
		ro.SubmitLabel = v
	}

	return render.Form(formID, config, ro)
}
