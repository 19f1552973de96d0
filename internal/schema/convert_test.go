package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertFormats(t *testing.T) {
	want := `{"fieldsets":[{"fields":[{"label":"Email","name":"email","type":"text"}],"title":"About"}]}`

	cases := map[string]string{
		"form.json": `{"fieldsets": [{"fields": [{"label": "Email", "name": "email", "type": "text"}], "title": "About"}]}`,
		"form.yaml": `
fieldsets:
  - title: About
    fields:
      - type: text
        name: email
        label: Email
`,
		"form.toml": `
[[fieldsets]]
title = "About"

  [[fieldsets.fields]]
  type = "text"
  name = "email"
  label = "Email"
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Convert(name, []byte(src))
			require.NoError(t, err)
			assert.JSONEq(t, want, got)

			cfg, err := Parse(got)
			require.NoError(t, err)
			require.Len(t, cfg.Fieldsets, 1)
			assert.Equal(t, "About", cfg.Fieldsets[0].Title)
			assert.Equal(t, 1, cfg.FieldCount())
		})
	}
}

func TestConvertYAMLNumbersStayNumbers(t *testing.T) {
	got, err := Convert("kids.yml", []byte(`
fieldsets:
  - type: repeatable
    repeater: {type: select, name: n, options: [0, 1, 2]}
    fields:
      - {type: integer, name: age, min: 0, max: 17}
`))
	require.NoError(t, err)

	cfg, err := Parse(got)
	require.NoError(t, err)
	rep, ok := cfg.Fieldsets[0].Repeater.(SelectField)
	require.True(t, ok)
	assert.Equal(t, []string{"0", "1", "2"}, rep.Options)

	age, ok := cfg.Fieldsets[0].Fields[0].(IntegerField)
	require.True(t, ok)
	require.NotNil(t, age.Max)
	assert.Equal(t, 17.0, *age.Max)
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert("bad.json", []byte(`{"fieldsets":`))
	assert.True(t, errors.Is(err, ErrMalformedConfig))

	_, err = Convert("bad.yaml", []byte("fieldsets: [unclosed"))
	assert.True(t, errors.Is(err, ErrMalformedConfig))

	_, err = Convert("form.xml", []byte("<form/>"))
	assert.Error(t, err)
}
