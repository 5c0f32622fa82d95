package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/config"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/preflight"
)

var preflightRemediate bool

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Validate the host without starting a build",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse(configPath)
		if err != nil {
			return err
		}

		runner := &preflight.Runner{
			Checks:             newChecks(cfg),
			AttemptRemediation: preflightRemediate,
			Logger:             logrus.StandardLogger(),
		}
		summary := runner.Run(cmd.Context())

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
		for _, result := range summary.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", result.CheckName, result.Status.ToString(), result.Message)
		}
		w.Flush()

		for _, result := range summary.Failed() {
			if result.Remediation != "" {
				fmt.Printf("\n%s: %s\n", result.CheckName, result.Remediation)
			}
		}

		if !summary.Valid() {
			return exitError{
				code:    exitValidationFailed,
				message: fmt.Sprintf("%d check(s) failed", len(summary.Failed())),
			}
		}
		return nil
	},
}

func init() {
	preflightCmd.Flags().BoolVar(&preflightRemediate, "remediate", false, "attempt to fix failed checks")
}
