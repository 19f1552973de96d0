package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thetanil/basicforms/internal/schema"
)

// RepeatPlaceholder stands in for the instance suffix inside the template
// of a repeatable fieldset. The client script replaces it when cloning.
const RepeatPlaceholder = "__bf_repeat__"

// FieldsetID returns the DOM id of the fieldset at index.
func FieldsetID(formID string, index int) string {
	return fmt.Sprintf("form_%s_fieldset_%d", formID, index)
}

// Fieldset renders a titled group of fields. Repeatable fieldsets render
// their repeater control, an instance container pre-populated with
// opts.Prefill instances and an inert template for the client to clone.
func Fieldset(formID string, fs schema.Fieldset, opts Options) (string, error) {
	id := escape(FieldsetID(formID, fs.Index))

	var b strings.Builder
	fmt.Fprintf(&b, `<fieldset id="%s" class="bf-fieldset bf-fieldset-%s">`, id, fs.Kind)
	fmt.Fprintf(&b, `<legend>%s</legend>`, escape(fs.Title))

	if fs.Kind != schema.FieldsetRepeatable {
		if err := writeFields(&b, formID, fs.Fields, ""); err != nil {
			return "", err
		}
		b.WriteString("</fieldset>")
		return b.String(), nil
	}

	containerID := id + "_container"
	templateID := id + "_template"

	fmt.Fprintf(&b, `<div class="bf-repeater" data-container="%s" data-template="%s">`, containerID, templateID)
	if fs.Repeater != nil {
		out, err := Field(formID, fs.Repeater, "")
		if err != nil {
			return "", fmt.Errorf("failed to render repeater of fieldset %d: %w", fs.Index, err)
		}
		b.WriteString(out)
	}
	b.WriteString("</div>")

	fmt.Fprintf(&b, `<div id="%s" class="bf-repeatable-container">`, containerID)
	for i := 1; i <= opts.Prefill; i++ {
		out, err := Instance(formID, fs, strconv.Itoa(i))
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	b.WriteString("</div>")

	tmpl, err := Instance(formID, fs, RepeatPlaceholder)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, `<template id="%s" class="bf-repeatable-template">%s</template>`, templateID, tmpl)

	b.WriteString("</fieldset>")
	return b.String(), nil
}

// Instance renders one repeated copy of a repeatable fieldset's fields,
// wrapped in a collapsible group.
func Instance(formID string, fs schema.Fieldset, suffix string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<fieldset class="bf-repeatable" data-repeat="%s">`, escape(suffix))
	fmt.Fprintf(&b, `<legend>%s</legend>`, escape(fs.Legend))
	b.WriteString(`<button type="button" class="bf-accordion-toggle" aria-expanded="true">Collapse</button>`)
	b.WriteString(`<div class="bf-accordion-data">`)
	if err := writeFields(&b, formID, fs.Fields, suffix); err != nil {
		return "", err
	}
	b.WriteString("</div></fieldset>")
	return b.String(), nil
}

func writeFields(b *strings.Builder, formID string, fields []schema.Field, suffix string) error {
	for i, f := range fields {
		out, err := Field(formID, f, suffix)
		if err != nil {
			return fmt.Errorf("failed to render field %d: %w", i, err)
		}
		b.WriteString(out)
	}
	return nil
}
