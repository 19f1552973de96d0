package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thetanil/basicforms/internal/schema"
	"github.com/thetanil/basicforms/internal/store"
)

var formsCmd = &cobra.Command{
	Use:     "forms",
	GroupID: "forms",
	Short:   "Manage form schemas",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List form schemas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		forms, err := a.forms.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(forms) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No forms yet. Add one with: basicforms forms add"))
			return nil
		}

		rows := make([][]string, 0, len(forms))
		for _, f := range forms {
			fields := "?"
			if cfg, err := schema.Parse(f.Config); err == nil {
				fields = strconv.Itoa(cfg.FieldCount())
			}
			hook := ""
			if f.Hook != "" {
				hook = "yes"
			}
			rows = append(rows, []string{f.FormID, f.FormName, fields, hook, ago(f.Timestamp)})
		}
		printTable(cmd.OutOrStdout(), []string{"Form ID", "Form Name", "Fields", "Hook", "Updated"}, rows)
		return nil
	},
}

var formsShowCmd = &cobra.Command{
	Use:   "show <form_id>",
	Short: "Show a form schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		form, err := a.forms.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := struct {
			*store.Form
			Config json.RawMessage `json:"config"`
		}{Form: form, Config: json.RawMessage(form.Config)}
		if !json.Valid(out.Config) {
			return printJSON(cmd.OutOrStdout(), form)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var formsAddCmd = &cobra.Command{
	Use:   "add <form_id> <form_name> <schema_file>",
	Short: "Add a form schema from a JSON, YAML or TOML file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := readSchema(args[2])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.forms.Insert(cmd.Context(), args[0], args[1], config)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added form %s (id %d)\n", passStyle.Render("✓"), args[0], id)
		return nil
	},
}

var formsUpdateCmd = &cobra.Command{
	Use:   "update <form_id> <schema_file>",
	Short: "Replace the schema of a form",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := readSchema(args[1])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.forms.Update(cmd.Context(), args[0], config)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("form not found: %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Updated form %s\n", passStyle.Render("✓"), args[0])
		return nil
	},
}

var formsDeleteYes bool

var formsDeleteCmd = &cobra.Command{
	Use:   "delete <form_id>",
	Short: "Delete a form and all of its submissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID := args[0]

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !formsDeleteYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return errors.New("refusing to delete without --yes on a non-interactive terminal")
			}
			count, err := a.submissions.Count(cmd.Context(), formID)
			if err != nil {
				return err
			}
			confirmed := false
			err = huh.NewConfirm().
				Title(fmt.Sprintf("Delete form %s and its %d submissions?", formID, count)).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}

		n, err := a.forms.Delete(cmd.Context(), formID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("form not found: %s", formID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted form %s\n", passStyle.Render("✓"), formID)
		return nil
	},
}

var formsHookClear bool

var formsHookCmd = &cobra.Command{
	Use:   "hook <form_id> [script_file]",
	Short: "Set or clear the Starlark validation hook of a form",
	Long: `Set or clear the Starlark validation hook of a form.

The script must define validate(data, metadata). Returning None, True or
an empty value accepts the submission; a string, a list of messages or a
dict of field messages rejects it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src string
		switch {
		case formsHookClear:
		case len(args) == 2:
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read hook script: %w", err)
			}
			src = string(data)
		default:
			return errors.New("pass a script file or --clear")
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.hooks.Check(src); err != nil {
			return err
		}
		n, err := a.forms.SetHook(cmd.Context(), args[0], src)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("form not found: %s", args[0])
		}

		if src == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Cleared hook of %s\n", passStyle.Render("✓"), args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Set hook of %s\n", passStyle.Render("✓"), args[0])
		}
		return nil
	},
}

// readSchema loads a schema file and checks that it can be rendered.
func readSchema(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	config, err := schema.Convert(path, data)
	if err != nil {
		return "", err
	}
	if _, err := schema.Parse(config); err != nil {
		return "", err
	}
	return config, nil
}

func init() {
	formsDeleteCmd.Flags().BoolVarP(&formsDeleteYes, "yes", "y", false, "Delete without asking")
	formsHookCmd.Flags().BoolVar(&formsHookClear, "clear", false, "Remove the hook")

	formsCmd.AddCommand(formsListCmd, formsShowCmd, formsAddCmd, formsUpdateCmd, formsDeleteCmd, formsHookCmd)
}
