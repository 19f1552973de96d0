package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thetanil/basicforms/internal/fill"
	"github.com/thetanil/basicforms/internal/hook"
	"github.com/thetanil/basicforms/internal/schema"
)

var fillSet []string

var fillCmd = &cobra.Command{
	Use:     "fill <form_id>",
	GroupID: "forms",
	Short:   "Fill in a form in the terminal and store the submission",
	Long: `Fill in a form in the terminal and store the submission.

The answers go through the form's validation hook exactly like a
submission from the browser. Use --set name=value to pre-fill answers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("fill needs an interactive terminal")
		}

		defaults := make(map[string]any, len(fillSet))
		for _, kv := range fillSet {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid --set %q: want name=value", kv)
			}
			defaults[name] = value
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		form, err := a.forms.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cfg, err := schema.Parse(form.Config)
		if err != nil {
			return err
		}

		data, err := fill.Run(cfg, defaults, func(f *huh.Form) error {
			return f.WithTheme(huh.ThemeCharm()).Run()
		})
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, "Submission cancelled.")
			return nil
		}
		if err != nil {
			return err
		}

		dataJSON, err := json.Marshal(data)
		if err != nil {
			return err
		}
		metaJSON, err := json.Marshal(map[string]any{"source": "cli"})
		if err != nil {
			return err
		}

		if err := a.hooks.Validate(cmd.Context(), form.Hook, dataJSON, metaJSON); err != nil {
			var rejected *hook.RejectedError
			if errors.As(err, &rejected) {
				fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("Submission rejected:"))
				for _, msg := range rejected.Messages {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", msg)
				}
			}
			return err
		}

		id, err := a.submissions.Insert(cmd.Context(), form.FormID, dataJSON, metaJSON)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Stored submission %d for %s\n", passStyle.Render("✓"), id, form.FormID)
		return nil
	},
}

func init() {
	fillCmd.Flags().StringArrayVar(&fillSet, "set", nil, "Pre-fill an answer as name=value (repeatable)")
}
