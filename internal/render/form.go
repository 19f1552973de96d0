package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thetanil/basicforms/internal/schema"
)

// DefaultSubmitLabel is the submit control's text when Options leaves it
// unset.
const DefaultSubmitLabel = "Register"

// Notice texts shown by the client script after a submission attempt.
const (
	SuccessNotice = "Form submitted successfully."
	ErrorNotice   = "Error: Form could not be submitted."
)

// Options tune the rendered markup. The zero value renders a form that
// posts to the current page with no prefilled repeat instances.
type Options struct {
	// Action is the form's action URL for clients without JavaScript.
	Action string
	// SubmitURL is the JSON endpoint the client script posts to. When
	// empty the script leaves the native submission alone.
	SubmitURL string
	// SubmitLabel overrides DefaultSubmitLabel.
	SubmitLabel string
	// Prefill renders this many instances into every repeatable container.
	Prefill int
}

// Form parses rawConfig and renders the complete form. A malformed config
// renders an empty form shell; an unsupported field type is an error.
func Form(formID, rawConfig string, opts Options) (string, error) {
	cfg, err := schema.Parse(rawConfig)
	if err != nil && !errors.Is(err, schema.ErrMalformedConfig) {
		return "", fmt.Errorf("failed to parse config of form %s: %w", formID, err)
	}
	return FormConfig(formID, cfg, opts)
}

// FormConfig renders an already parsed config.
func FormConfig(formID string, cfg *schema.Config, opts Options) (string, error) {
	id := escape(formID)
	label := opts.SubmitLabel
	if label == "" {
		label = DefaultSubmitLabel
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<form id="form_%s" class="bf-form" method="post" action="%s" data-form-id="%s"`,
		id, escape(opts.Action), id)
	if opts.SubmitURL != "" {
		fmt.Fprintf(&b, ` data-submit-url="%s"`, escape(opts.SubmitURL))
	}
	b.WriteString(">")
	fmt.Fprintf(&b, `<input type="hidden" id="form_%s_form_id" name="form_id" value="%s" />`, id, id)

	if cfg != nil {
		for _, fs := range cfg.Fieldsets {
			out, err := Fieldset(formID, fs, opts)
			if err != nil {
				return "", fmt.Errorf("failed to render form %s: %w", formID, err)
			}
			b.WriteString(out)
		}
	}

	fmt.Fprintf(&b, `<div class="bf-notice bf-success" hidden>%s</div>`, SuccessNotice)
	fmt.Fprintf(&b, `<div class="bf-notice bf-error" hidden>%s</div>`, ErrorNotice)
	fmt.Fprintf(&b, `<input type="submit" name="bf_%s-submit" value="%s" />`, id, escape(label))
	b.WriteString("</form>")

	return b.String(), nil
}
