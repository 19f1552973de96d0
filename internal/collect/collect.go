// Package collect partitions a browser form post into submission data and
// metadata. It mirrors the client script for clients that post
// application/x-www-form-urlencoded bodies without JavaScript.
package collect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/thetanil/basicforms/internal/render"
	"github.com/thetanil/basicforms/internal/schema"
)

// FormIDKey is the hidden input carrying the schema id. It is neither
// data nor metadata.
const FormIDKey = "form_id"

// maxInstances bounds the repeat count read from a post.
const maxInstances = 1000

// Payload is a partitioned submission.
type Payload struct {
	Data     map[string]any
	Metadata map[string]any
}

// JSON encodes both halves of the payload.
func (p Payload) JSON() (data, metadata json.RawMessage, err error) {
	data, err = json.Marshal(p.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode data: %w", err)
	}
	metadata, err = json.Marshal(p.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, metadata, nil
}

type fieldIndex struct {
	static   map[string]schema.Field
	repeated map[string]schema.Field
	groups   []schema.Fieldset
}

func indexConfig(cfg *schema.Config) fieldIndex {
	idx := fieldIndex{
		static:   map[string]schema.Field{},
		repeated: map[string]schema.Field{},
	}
	if cfg == nil {
		return idx
	}
	for _, fs := range cfg.Fieldsets {
		if fs.Kind == schema.FieldsetRepeatable {
			idx.groups = append(idx.groups, fs)
			if fs.Repeater != nil {
				idx.static[fs.Repeater.Attrs().Name] = fs.Repeater
			}
			for _, f := range fs.Fields {
				idx.repeated[f.Attrs().Name] = f
			}
			continue
		}
		for _, f := range fs.Fields {
			idx.static[f.Attrs().Name] = f
		}
	}
	return idx
}

// lookup resolves a submitted key to the field that produced it. other
// reports whether the key is a multiselect's free-text input.
func (idx fieldIndex) lookup(key string) (f schema.Field, other bool) {
	if f, ok := idx.static[key]; ok {
		return f, false
	}
	if f, ok := idx.repeatedField(key); ok {
		return f, false
	}
	if base, ok := strings.CutSuffix(key, "_other"); ok {
		f, ok := idx.static[base]
		if !ok {
			f, ok = idx.repeatedField(base)
		}
		if ok && f.Kind() == schema.KindMultiselect {
			return f, true
		}
	}
	return nil, false
}

// repeatedField matches "<name>_<n>" against repeatable fieldset fields.
func (idx fieldIndex) repeatedField(key string) (schema.Field, bool) {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 || !digits(key[i+1:]) {
		return nil, false
	}
	f, ok := idx.repeated[key[:i]]
	return f, ok
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Partition splits values by the names cfg declares. Multiselect values are
// lists, checkboxes are booleans and other data values are strings. Keys
// the schema does not declare are metadata, except the form id and the
// submit control.
func Partition(formID string, cfg *schema.Config, values url.Values) Payload {
	p := Payload{Data: map[string]any{}, Metadata: map[string]any{}}
	idx := indexConfig(cfg)
	submit := "bf_" + formID + "-submit"

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		if key == FormIDKey || key == submit {
			continue
		}

		f, other := idx.lookup(key)
		switch {
		case f == nil:
			if len(vals) == 1 {
				p.Metadata[key] = vals[0]
			} else {
				p.Metadata[key] = vals
			}
		case other:
			p.Data[key] = first(vals)
		case f.Kind() == schema.KindMultiselect:
			p.Data[key] = nonEmpty(vals)
		case f.Kind() == schema.KindCheckbox:
			p.Data[key] = checked(first(vals))
		default:
			p.Data[key] = first(vals)
		}
	}

	// Unchecked boxes are absent from a browser post; report them the way
	// the client script does.
	for name, f := range idx.static {
		p.backfill(f, name, "")
	}
	for _, fs := range idx.groups {
		n := instances(fs, values)
		for i := 1; i <= n; i++ {
			for _, f := range fs.Fields {
				p.backfill(f, f.Attrs().Name, strconv.Itoa(i))
			}
		}
	}

	return p
}

func (p Payload) backfill(f schema.Field, name, suffix string) {
	key := render.InputName(name, suffix)
	if _, ok := p.Data[key]; ok {
		return
	}
	switch f := f.(type) {
	case schema.CheckboxField:
		p.Data[key] = false
	case schema.MultiselectField:
		p.Data[key] = []string{}
		other := render.OtherName(name, suffix)
		if _, ok := p.Data[other]; !ok && f.Other != nil {
			p.Data[other] = ""
		}
	}
}

// instances returns how many copies of a repeatable fieldset were posted:
// the repeater's count, or more when the post carries higher suffixes.
func instances(fs schema.Fieldset, values url.Values) int {
	n := 0
	if fs.Repeater != nil {
		v, err := strconv.Atoi(strings.TrimSpace(values.Get(fs.Repeater.Attrs().Name)))
		if err == nil && v > 0 {
			n = v
		}
	}
	for key := range values {
		key = strings.TrimSuffix(key, "_other")
		i := strings.LastIndexByte(key, '_')
		if i <= 0 || i == len(key)-1 || !digits(key[i+1:]) {
			continue
		}
		for _, f := range fs.Fields {
			if f.Attrs().Name != key[:i] {
				continue
			}
			if v, err := strconv.Atoi(key[i+1:]); err == nil && v > n {
				n = v
			}
		}
	}
	return min(n, maxInstances)
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func nonEmpty(vals []string) []string {
	out := []string{}
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func checked(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", "false", "off":
		return false
	default:
		return true
	}
}
