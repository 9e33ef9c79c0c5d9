package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/filter"
)

func newPolicyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the command filter policy",
	}
	cmd.PersistentFlags().StringVar(&file, "file", os.Getenv("FILTER_POLICY_FILE"), "YAML or TOML file with extra rules")

	cmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List the rules in effect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := filter.LoadPolicy(file)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tREASON")
			for _, r := range policy.Rules() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Category, r.Reason)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <command line>",
		Short: "Evaluate a command line against the policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := filter.LoadPolicy(file)
			if err != nil {
				return err
			}
			line := strings.Join(args, " ")
			if len(line) > filter.MaxLineLength {
				return reportVerdict(cmd, filter.TooLong)
			}
			return reportVerdict(cmd, policy.Evaluate(line))
		},
	})

	return cmd
}

func reportVerdict(cmd *cobra.Command, v filter.Verdict) error {
	if v.Allowed {
		fmt.Fprintln(cmd.OutOrStdout(), "allowed")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "blocked\trule=%s\tcategory=%s\treason=%s\n", v.Rule, v.Category, v.Reason)
	return fmt.Errorf("command blocked by rule %q", v.Rule)
}
