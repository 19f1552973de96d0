// Package render turns a parsed form config into HTML markup.
//
// Rendering is a pure function of its inputs: the same form id, config and
// options always produce byte-identical output. All schema-supplied text is
// HTML-escaped.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/thetanil/basicforms/internal/schema"
)

const (
	// DataFieldClass marks inputs whose values belong in a submission's
	// data payload. Unmarked inputs are collected as metadata.
	DataFieldClass = "bf-data-field"

	// SelectPrompt is the disabled first option of every select.
	SelectPrompt = "-- select an option --"
)

// ElementID returns the DOM id of a rendered field instance.
func ElementID(formID, name, suffix string) string {
	id := "form_" + formID + "_" + name
	if suffix != "" {
		id += "_" + suffix
	}
	return id
}

// InputName returns the submitted name of a field instance.
func InputName(name, suffix string) string {
	if suffix == "" {
		return name
	}
	return name + "_" + suffix
}

// OtherName returns the name of a multiselect's free-text "other" input.
func OtherName(name, suffix string) string {
	return InputName(name, suffix) + "_other"
}

// Field renders one field descriptor. suffix disambiguates repeated
// instances of the same field and is empty for static fieldsets.
func Field(formID string, f schema.Field, suffix string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("cannot render nil field")
	}

	c := f.Attrs()
	id := escape(ElementID(formID, c.Name, suffix))
	name := escape(InputName(c.Name, suffix))

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="bf-field bf-field-%s">`, f.Kind())

	switch f := f.(type) {
	case schema.TextField:
		writeLabel(&b, id, c.Label)
		fmt.Fprintf(&b, `<input id="%s" type="text" class="%s" name="%s" placeholder="%s" />`,
			id, DataFieldClass, name, escape(c.Placeholder))

	case schema.CheckboxField:
		fmt.Fprintf(&b, `<label for="%s"><input id="%s" type="checkbox" class="%s" name="%s" />%s</label>`,
			id, id, DataFieldClass, name, escape(c.Label))

	case schema.IntegerField:
		writeLabel(&b, id, c.Label)
		fmt.Fprintf(&b, `<input id="%s" type="number" step="1" class="%s" name="%s" placeholder="%s"`,
			id, DataFieldClass, name, escape(c.Placeholder))
		if f.Min != nil {
			fmt.Fprintf(&b, ` min="%s"`, formatNumber(*f.Min))
		}
		if f.Max != nil {
			fmt.Fprintf(&b, ` max="%s"`, formatNumber(*f.Max))
		}
		b.WriteString(" />")

	case schema.SelectField:
		writeLabel(&b, id, c.Label)
		fmt.Fprintf(&b, `<select id="%s" class="%s" name="%s">`, id, DataFieldClass, name)
		fmt.Fprintf(&b, `<option disabled selected value="">%s</option>`, SelectPrompt)
		for i, opt := range f.Options {
			fmt.Fprintf(&b, `<option id="%s_%d" value="%s">%s</option>`, id, i, escape(opt), escape(opt))
		}
		b.WriteString("</select>")

	case schema.MultiselectField:
		fmt.Fprintf(&b, `<div id="%s" class="bf-multiselect"><p class="bf-label">%s</p>`, id, escape(c.Label))
		for i, opt := range f.Options {
			optID := fmt.Sprintf("%s_%d", id, i)
			fmt.Fprintf(&b, `<label for="%s"><input id="%s" type="checkbox" class="%s" name="%s" value="%s" data-multiple />%s</label>`,
				optID, optID, DataFieldClass, name, escape(opt), escape(opt))
		}
		if f.Other != nil {
			otherID := id + "_other"
			valueID := id + "_other_value"
			fmt.Fprintf(&b, `<label for="%s"><input id="%s" type="checkbox" class="%s" name="%s" value="%s" data-multiple data-other="%s" />%s</label>`,
				otherID, otherID, DataFieldClass, name, escape(f.Other.Option), valueID, escape(f.Other.Option))
			fmt.Fprintf(&b, `<label for="%s">%s</label><input id="%s" type="text" class="%s" name="%s" />`,
				valueID, escape(f.Other.Label), valueID, DataFieldClass, escape(OtherName(c.Name, suffix)))
		}
		b.WriteString("</div>")

	default:
		return "", fmt.Errorf("unsupported field type %q", f.Kind())
	}

	b.WriteString("</div>")
	return b.String(), nil
}

func writeLabel(b *strings.Builder, id, label string) {
	fmt.Fprintf(b, `<label for="%s">%s</label>`, id, escape(label))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escape(s string) string {
	return html.EscapeString(s)
}
