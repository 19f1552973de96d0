package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thetanil/basicforms/internal/render"
)

var (
	renderPrefill int
	renderAction  string
	renderSubmit  string
)

var renderCmd = &cobra.Command{
	Use:     "render <form_id>",
	GroupID: "forms",
	Short:   "Print the HTML markup of a form",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if renderPrefill < 0 {
			return fmt.Errorf("--prefill must not be negative")
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

		markup, err := render.Form(form.FormID, form.Config, render.Options{
			Action:      renderAction,
			SubmitURL:   renderSubmit,
			SubmitLabel: a.cfg.Render.SubmitLabel,
			Prefill:     renderPrefill,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), markup)
		return nil
	},
}

func init() {
	renderCmd.Flags().IntVar(&renderPrefill, "prefill", 0, "Instances to pre-render in each repeatable fieldset")
	renderCmd.Flags().StringVar(&renderAction, "action", "", "Form action URL")
	renderCmd.Flags().StringVar(&renderSubmit, "submit-url", "", "JSON endpoint the client script posts to")
}
