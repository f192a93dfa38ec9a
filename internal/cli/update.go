package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libkeeper/libkeeper/internal/branding"
	"github.com/libkeeper/libkeeper/internal/updater"
)

var updateForce bool

func init() {
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "Check and install even if checked recently or already current")

	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check the release feed and install a newer library build",
	Long: `Checks the upstream release feed for a newer build of the managed library
and installs it. Checks are throttled to once per configured interval;
--force skips the throttle and reinstalls even when the version matches.

  ` + branding.CLIName() + ` update            # throttled check, install if newer
  ` + branding.CLIName() + ` update --force    # check now and reinstall`,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := updater.New(cfg)
		if err != nil {
			return err
		}

		outcome, err := u.Run(cmd.Context(), updateForce)
		if err != nil {
			return err
		}

		switch outcome {
		case updater.OutcomeThrottled:
			fmt.Printf("Checked within the last %s; use --force to check now.\n", cfg.CheckInterval)
		case updater.OutcomeNotModified:
			fmt.Printf("No changes upstream; %s is current.\n", u.Filename())
		case updater.OutcomeNoRelease:
			if updateForce {
				fmt.Println("No update available.")
			}
		case updater.OutcomeSameVersion:
			fmt.Println("You are on the latest version.")
		case updater.OutcomeUpdated:
			fmt.Printf("Successfully updated %s\n", u.LibraryPath())
		}
		return nil
	},
}
