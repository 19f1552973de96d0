package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedConfig is returned when a config is not valid JSON. The
// accompanying *Config is empty and still safe to render.
var ErrMalformedConfig = errors.New("malformed form config")

// UnsupportedFieldError reports a field whose type is not one of the known
// kinds.
type UnsupportedFieldError struct {
	Type string
	Path string
}

func (e *UnsupportedFieldError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("unsupported field type: missing type at %s", e.Path)
	}
	return fmt.Sprintf("unsupported field type %q at %s", e.Type, e.Path)
}

// Parse decodes a JSON form config.
//
// Attributes are read permissively: anything missing or of the wrong JSON
// type takes its zero value, so partial schemas still produce a Config.
// Only two conditions are errors. Invalid JSON returns an empty Config
// together with ErrMalformedConfig; a field of unknown type returns
// *UnsupportedFieldError.
func Parse(raw string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return cfg, fmt.Errorf("%w: trailing data after config object", ErrMalformedConfig)
	}

	root := object(doc)
	for i, item := range list(root, "fieldsets") {
		fs, err := parseFieldset(i, object(item))
		if err != nil {
			return &Config{}, err
		}
		cfg.Fieldsets = append(cfg.Fieldsets, fs)
	}

	return cfg, nil
}

func parseFieldset(index int, m map[string]any) (Fieldset, error) {
	fs := Fieldset{
		Index:      index,
		Kind:       FieldsetDefault,
		Title:      text(m, "title"),
		Legend:     text(m, "legend"),
		InitRepeat: integer(m, "init_repeat", 1),
	}
	if text(m, "type") == string(FieldsetRepeatable) {
		fs.Kind = FieldsetRepeatable
	}

	for j, item := range list(m, "fields") {
		f, err := parseField(fmt.Sprintf("fieldsets[%d].fields[%d]", index, j), object(item))
		if err != nil {
			return fs, err
		}
		fs.Fields = append(fs.Fields, f)
	}

	if fs.Kind == FieldsetRepeatable {
		if r, ok := m["repeater"].(map[string]any); ok {
			f, err := parseField(fmt.Sprintf("fieldsets[%d].repeater", index), r)
			if err != nil {
				return fs, err
			}
			fs.Repeater = f
		}
	}

	return fs, nil
}

func parseField(path string, m map[string]any) (Field, error) {
	c := Common{
		Name:        text(m, "name"),
		Label:       text(m, "label"),
		Placeholder: text(m, "placeholder"),
	}

	switch kind := Kind(text(m, "type")); kind {
	case KindText:
		return TextField{Common: c}, nil
	case KindCheckbox:
		return CheckboxField{Common: c}, nil
	case KindInteger:
		return IntegerField{Common: c, Min: number(m, "min"), Max: number(m, "max")}, nil
	case KindSelect:
		return SelectField{Common: c, Options: texts(m, "options")}, nil
	case KindMultiselect:
		f := MultiselectField{Common: c, Options: texts(m, "options")}
		switch o := m["other"].(type) {
		case map[string]any:
			f.Other = &Other{
				Option: textOr(o, "option", DefaultOtherOption),
				Label:  textOr(o, "label", DefaultOtherLabel),
			}
		case bool:
			if o {
				f.Other = &Other{Option: DefaultOtherOption, Label: DefaultOtherLabel}
			}
		}
		return f, nil
	default:
		return nil, &UnsupportedFieldError{Type: string(kind), Path: path}
	}
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}

func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func text(m map[string]any, key string) string {
	s, _ := scalar(m[key])
	return s
}

func textOr(m map[string]any, key, def string) string {
	if s, ok := scalar(m[key]); ok && s != "" {
		return s
	}
	return def
}

// texts keeps scalar entries in order and drops nested values.
func texts(m map[string]any, key string) []string {
	var out []string
	for _, item := range list(m, key) {
		if s, ok := scalar(item); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(m map[string]any, key string) *float64 {
	var (
		f   float64
		err error
	)
	switch v := m[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &f
}

func integer(m map[string]any, key string, def int) int {
	if n := number(m, key); n != nil {
		return int(*n)
	}
	return def
}
