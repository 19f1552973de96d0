package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/thetanil/basicforms/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:     "submissions",
	GroupID: "forms",
	Short:   "Inspect stored submissions",
}

var (
	submissionsForm  string
	submissionsSince string
	submissionsLimit int
)

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions ordered by form name",
	Example: `  basicforms submissions list --form signup
  basicforms submissions list --since "last monday"
  basicforms submissions list --since 2h --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.SubmissionFilter{FormID: submissionsForm, Limit: submissionsLimit}
		if submissionsSince != "" {
			since, err := parseSince(submissionsSince, time.Now())
			if err != nil {
				return err
			}
			filter.Since = since
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		subs, err := a.submissions.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No submissions."))
			return nil
		}

		rows := make([][]string, 0, len(subs))
		for _, s := range subs {
			rows = append(rows, []string{strconv.FormatInt(s.ID, 10), s.FormID, s.FormName, ago(s.Timestamp)})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Form ID", "Form Name", "Created"}, rows)
		return nil
	},
}

var submissionsShowCmd = &cobra.Command{
	Use:   "show <submission_id>",
	Short: "Show one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid submission id %q", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sub, err := a.submissions.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sub)
	},
}

// parseSince accepts a duration ("36h"), an RFC 3339 time or a natural
// language expression ("yesterday", "last monday").
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a date or duration", s)
	}
	return r.Time, nil
}

func init() {
	submissionsListCmd.Flags().StringVar(&submissionsForm, "form", "", "Only submissions of this form")
	submissionsListCmd.Flags().StringVar(&submissionsSince, "since", "", "Only submissions created after this time")
	submissionsListCmd.Flags().IntVar(&submissionsLimit, "limit", 0, "Maximum number of rows")

	submissionsCmd.AddCommand(submissionsListCmd, submissionsShowCmd)
}
