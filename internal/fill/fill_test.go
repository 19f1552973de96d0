package fill

import (
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetanil/basicforms/internal/schema"
)

// skip completes a form without user input so answers keep their defaults.
func skip(calls *int) Runner {
	return func(*huh.Form) error {
		*calls++
		return nil
	}
}

func parse(t *testing.T, raw string) *schema.Config {
	t.Helper()
	cfg, err := schema.Parse(raw)
	require.NoError(t, err)
	return cfg
}

func TestRunStaticFields(t *testing.T) {
	cfg := parse(t, `{"fieldsets":[{"title":"About","fields":[
		{"type":"text","name":"email","label":"Email"},
		{"type":"checkbox","name":"agree","label":"Agree"},
		{"type":"integer","name":"age","label":"Age"},
		{"type":"select","name":"colour","options":["red","green"]},
		{"type":"multiselect","name":"pets","options":["cat","dog"],"other":true}
	]}]}`)

	var calls int
	data, err := Run(cfg, map[string]any{
		"email":  "ada@example.com",
		"agree":  "true",
		"age":    36,
		"colour": "green",
		"pets":   "cat",
	}, skip(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	want := map[string]any{
		"email":      "ada@example.com",
		"agree":      true,
		"age":        "36",
		"colour":     "green",
		"pets":       []string{"cat"},
		"pets_other": "",
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRepeatableAsksInstancesAfterCount(t *testing.T) {
	cfg := parse(t, `{"fieldsets":[{"type":"repeatable","title":"Children","legend":"Child",
		"repeater":{"type":"select","name":"children","options":[0,1,2]},
		"fields":[{"type":"text","name":"child_name"},{"type":"checkbox","name":"allergic"}]}]}`)

	var calls int
	data, err := Run(cfg, map[string]any{"children": "2", "child_name_1": "Ann"}, skip(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	want := map[string]any{
		"children":     "2",
		"child_name_1": "Ann",
		"allergic_1":   false,
		"child_name_2": "",
		"allergic_2":   false,
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestRunWithoutRepeaterAsksNoInstances(t *testing.T) {
	cfg := parse(t, `{"fieldsets":[{"type":"repeatable","fields":[{"type":"text","name":"child"}]}]}`)

	var calls int
	data, err := Run(cfg, nil, skip(&calls))
	require.NoError(t, err)
	assert.Zero(t, calls)
	assert.Empty(t, data)
}

func TestIntegerRule(t *testing.T) {
	lo, hi := 1.0, 10.0
	rule := IntegerRule(schema.IntegerField{Min: &lo, Max: &hi})

	assert.NoError(t, rule(""))
	assert.NoError(t, rule("5"))
	assert.Error(t, rule("0"))
	assert.Error(t, rule("11"))
	assert.Error(t, rule("2.5"))
	assert.NoError(t, IntegerRule(schema.IntegerField{})(" -40 "))
}
