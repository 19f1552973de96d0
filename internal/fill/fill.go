// Package fill collects a submission for a form schema in the terminal.
// It renders the same field variants as the HTML renderer, as huh prompts,
// and produces data shaped like a browser submission.
package fill

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/schema"
)

// Runner displays a form and blocks until it is completed.
type Runner func(form *huh.Form) error

// Run prompts for every field of cfg and returns the submission data.
// Static fieldsets and repeater controls are asked first; the instances of
// each repeatable fieldset are asked once the repeat counts are known.
// defaults seeds the initial values by submitted field name.
func Run(cfg *schema.Config, defaults map[string]any, run Runner) (map[string]any, error) {
	a := &answers{defaults: defaults}

	type repeat struct {
		fs    schema.Fieldset
		count func() int
	}
	var (
		groups  []*huh.Group
		repeats []repeat
	)

	for _, fs := range cfg.Fieldsets {
		if fs.Kind != schema.FieldsetRepeatable {
			if len(fs.Fields) == 0 {
				continue
			}
			fields, err := a.fields(fs.Fields, "")
			if err != nil {
				return nil, err
			}
			groups = append(groups, huh.NewGroup(fields...).Title(fs.Title))
			continue
		}

		r := repeat{fs: fs, count: func() int { return 0 }}
		if fs.Repeater != nil {
			fields, err := a.fields([]schema.Field{fs.Repeater}, "")
			if err != nil {
				return nil, err
			}
			groups = append(groups, huh.NewGroup(fields...).Title(fs.Title))
			r.count = a.count(fs.Repeater.Attrs().Name)
		}
		repeats = append(repeats, r)
	}

	if len(groups) > 0 {
		if err := run(huh.NewForm(groups...)); err != nil {
			return nil, err
		}
	}

	groups = nil
	for _, r := range repeats {
		for i := 1; i <= r.count(); i++ {
			fields, err := a.fields(r.fs.Fields, strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			if len(fields) == 0 {
				continue
			}
			groups = append(groups, huh.NewGroup(fields...).Title(fmt.Sprintf("%s %d", r.fs.Legend, i)))
		}
	}
	if len(groups) > 0 {
		if err := run(huh.NewForm(groups...)); err != nil {
			return nil, err
		}
	}

	return a.data(), nil
}

type answer struct {
	name string
	get  func() any
}

type answers struct {
	defaults map[string]any
	list     []answer
}

func (a *answers) add(name string, get func() any) {
	a.list = append(a.list, answer{name: name, get: get})
}

func (a *answers) data() map[string]any {
	out := make(map[string]any, len(a.list))
	for _, ans := range a.list {
		out[ans.name] = ans.get()
	}
	return out
}

// count reads a repeater's answer as a repeat count.
func (a *answers) count(name string) func() int {
	return func() int {
		for _, ans := range a.list {
			if ans.name != name {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(ans.get())))
			if err != nil || n < 0 {
				return 0
			}
			return n
		}
		return 0
	}
}

func (a *answers) text(name string) *string {
	v := new(string)
	switch d := a.defaults[name].(type) {
	case string:
		*v = d
	case nil:
	default:
		*v = fmt.Sprint(d)
	}
	return v
}

func (a *answers) flag(name string) *bool {
	v := new(bool)
	switch d := a.defaults[name].(type) {
	case bool:
		*v = d
	case string:
		*v, _ = strconv.ParseBool(d)
	}
	return v
}

func (a *answers) choices(name string) *[]string {
	v := &[]string{}
	switch d := a.defaults[name].(type) {
	case []string:
		*v = slices.Clone(d)
	case string:
		for _, s := range strings.Split(d, ",") {
			if s = strings.TrimSpace(s); s != "" {
				*v = append(*v, s)
			}
		}
	}
	return v
}

func (a *answers) fields(fields []schema.Field, suffix string) ([]huh.Field, error) {
	var out []huh.Field
	for _, f := range fields {
		c := f.Attrs()
		name := render.InputName(c.Name, suffix)
		title := c.Label
		if title == "" {
			title = c.Name
		}

		switch f := f.(type) {
		case schema.TextField:
			v := a.text(name)
			a.add(name, func() any { return *v })
			out = append(out, huh.NewInput().Title(title).Placeholder(c.Placeholder).Value(v))

		case schema.CheckboxField:
			v := a.flag(name)
			a.add(name, func() any { return *v })
			out = append(out, huh.NewConfirm().Title(title).Value(v))

		case schema.IntegerField:
			v := a.text(name)
			a.add(name, func() any { return *v })
			out = append(out, huh.NewInput().Title(title).Placeholder(c.Placeholder).
				Validate(IntegerRule(f)).Value(v))

		case schema.SelectField:
			v := a.text(name)
			a.add(name, func() any { return *v })
			out = append(out, huh.NewSelect[string]().Title(title).
				Options(huh.NewOptions(f.Options...)...).Value(v))

		case schema.MultiselectField:
			v := a.choices(name)
			a.add(name, func() any { return append([]string{}, *v...) })
			opts := f.Options
			if f.Other != nil {
				opts = append(slices.Clone(opts), f.Other.Option)
			}
			out = append(out, huh.NewMultiSelect[string]().Title(title).
				Options(huh.NewOptions(opts...)...).Value(v))

			if f.Other != nil {
				otherName := render.OtherName(c.Name, suffix)
				o := a.text(otherName)
				a.add(otherName, func() any { return *o })
				out = append(out, huh.NewInput().Title(f.Other.Label).Value(o))
			}

		default:
			return nil, &schema.UnsupportedFieldError{Type: string(f.Kind()), Path: name}
		}
	}
	return out, nil
}

// IntegerRule validates an integer answer against the field's bounds. An
// empty answer is allowed.
func IntegerRule(f schema.IntegerField) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%s must be a whole number", s)
		}
		if f.Min != nil && float64(n) < *f.Min {
			return fmt.Errorf("must be at least %v", *f.Min)
		}
		if f.Max != nil && float64(n) > *f.Max {
			return fmt.Errorf("must be at most %v", *f.Max)
		}
		return nil
	}
}
