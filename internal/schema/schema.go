// Package schema defines the form configuration grammar interpreted by the
// renderer: an ordered list of fieldsets, each holding an ordered list of
// typed fields.
//
// Fields form a closed set of variants. Every variant implements Field and
// the interface is sealed, so a switch over the concrete types in this
// package is exhaustive.
package schema

// Kind identifies a field variant. The values match the "type" attribute of
// a field descriptor in the JSON config.
type Kind string

const (
	KindText        Kind = "text"
	KindCheckbox    Kind = "checkbox"
	KindInteger     Kind = "integer"
	KindSelect      Kind = "select"
	KindMultiselect Kind = "multiselect"
)

// FieldsetKind distinguishes static fieldsets from client-repeated ones.
type FieldsetKind string

const (
	FieldsetDefault    FieldsetKind = "default"
	FieldsetRepeatable FieldsetKind = "repeatable"
)

// Default labels for the free-text escape hatch of a multiselect.
const (
	DefaultOtherOption = "Other"
	DefaultOtherLabel  = "Please specify"
)

// Config is a parsed form configuration.
type Config struct {
	Fieldsets []Fieldset
}

// Fieldset is a titled group of fields.
type Fieldset struct {
	// Index is the position of the fieldset in the config. It keeps
	// rendered element ids unique across fieldsets.
	Index  int
	Kind   FieldsetKind
	Title  string
	Legend string
	// Fields are rendered in order. For a repeatable fieldset they are the
	// template cloned once per repeat.
	Fields []Field
	// Repeater is the control whose selected option text is the repeat
	// count. Only set for repeatable fieldsets; nil when the schema omits it.
	Repeater Field
	// InitRepeat is declared by schemas but not used when rendering.
	InitRepeat int
}

// Common holds the attributes shared by every field variant.
type Common struct {
	Name        string
	Label       string
	Placeholder string
}

// Field is one input descriptor.
type Field interface {
	Kind() Kind
	Attrs() Common
	sealed()
}

type TextField struct {
	Common
}

type CheckboxField struct {
	Common
}

// IntegerField is a numeric input. A nil bound is unbounded.
type IntegerField struct {
	Common
	Min *float64
	Max *float64
}

type SelectField struct {
	Common
	Options []string
}

// MultiselectField renders one checkbox per option sharing the field name.
// When Other is set an extra checkbox and a free-text input are appended.
type MultiselectField struct {
	Common
	Options []string
	Other   *Other
}

// Other configures the free-text escape hatch of a multiselect.
type Other struct {
	Option string
	Label  string
}

func (TextField) Kind() Kind        { return KindText }
func (CheckboxField) Kind() Kind    { return KindCheckbox }
func (IntegerField) Kind() Kind     { return KindInteger }
func (SelectField) Kind() Kind      { return KindSelect }
func (MultiselectField) Kind() Kind { return KindMultiselect }

func (f TextField) Attrs() Common        { return f.Common }
func (f CheckboxField) Attrs() Common    { return f.Common }
func (f IntegerField) Attrs() Common     { return f.Common }
func (f SelectField) Attrs() Common      { return f.Common }
func (f MultiselectField) Attrs() Common { return f.Common }

func (TextField) sealed()        {}
func (CheckboxField) sealed()    {}
func (IntegerField) sealed()     {}
func (SelectField) sealed()      {}
func (MultiselectField) sealed() {}

// FieldCount returns the number of fields declared across default
// fieldsets. Repeatable templates and repeater controls are not counted.
func (c *Config) FieldCount() int {
	n := 0
	for _, fs := range c.Fieldsets {
		if fs.Kind == FieldsetDefault {
			n += len(fs.Fields)
		}
	}
	return n
}
