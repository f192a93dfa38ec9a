package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/libkeeper/libkeeper/internal/branding"
	"github.com/libkeeper/libkeeper/internal/config"
	"github.com/libkeeper/libkeeper/internal/installer"
	"github.com/libkeeper/libkeeper/internal/platform"
	"github.com/libkeeper/libkeeper/internal/record"
)

var (
	checkPlatform bool
	checkConfig   bool
	checkLibrary  bool
	doctorFix     bool
)

func init() {
	doctorCmd.Flags().BoolVar(&checkPlatform, "check-platform", false, "Verify this OS/architecture has a published build")
	doctorCmd.Flags().BoolVar(&checkConfig, "check-config", false, "Validate the config file against its schema")
	doctorCmd.Flags().BoolVar(&checkLibrary, "check-library", false, "Verify the installed library and its version record")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Remove files left behind by an interrupted update")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the " + branding.DisplayName() + " installation",
	Long:  `Run diagnostic checks on the local library installation and configuration. No network requests are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		anyFlag := checkPlatform || checkConfig || checkLibrary

		// If no specific flag, run all checks.
		if !anyFlag {
			return runAllChecks(os.Stdout)
		}

		if checkPlatform {
			if err := runPlatformCheck(os.Stdout); err != nil {
				return err
			}
		}
		if checkConfig {
			if err := runConfigCheck(os.Stdout); err != nil {
				return err
			}
		}
		if checkLibrary {
			if err := runLibraryCheck(os.Stdout, cfg, doctorFix); err != nil {
				return err
			}
		}

		return nil
	},
}

// runAllChecks reports every finding and fails only on the conditions that
// make the tool unusable: an unsupported platform or a broken lib dir.
// Config problems are reported, not fatal, since the defaults still work.
func runAllChecks(w io.Writer) error {
	err := runPlatformCheck(w)
	_ = runConfigCheck(w)
	if libErr := runLibraryCheck(w, cfg, doctorFix); err == nil {
		err = libErr
	}
	return err
}

func runPlatformCheck(w io.Writer) error {
	fmt.Fprintln(w, "Platform check:")

	filename, err := platform.LibraryFilename()
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return err
	}
	fmt.Fprintf(w, "  [ OK ] %s/%s maps to %s\n", runtime.GOOS, runtime.GOARCH, filename)
	return nil
}

func runConfigCheck(w io.Writer) error {
	fmt.Fprintln(w, "Config check:")

	path := config.FilePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(w, "  [INFO] no config file at %s (defaults in use)\n", path)
		return nil
	}
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] cannot read %s: %v\n", path, err)
		return fmt.Errorf("reading config file: %w", err)
	}

	result, err := config.Validate(data)
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] cannot parse %s: %v\n", path, err)
		return fmt.Errorf("parsing config file: %w", err)
	}

	if result.Valid {
		fmt.Fprintf(w, "  [ OK ] %s is valid\n", path)
		return nil
	}

	// Report validation issues.
	fmt.Fprintf(w, "  [FAIL] %d validation issue(s):\n", len(result.Issues))
	for _, issue := range result.Issues {
		if issue.Path != "" {
			fmt.Fprintf(w, "    - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(w, "    - %s\n", issue.Message)
		}
	}
	return fmt.Errorf("config file %s has %d validation issue(s)", path, len(result.Issues))
}

func runLibraryCheck(w io.Writer, c *config.Config, fix bool) error {
	fmt.Fprintln(w, "Library check:")

	info, err := os.Stat(c.LibDir)
	switch {
	case os.IsNotExist(err):
		fmt.Fprintf(w, "  [MISS] library directory %s does not exist (created on first update)\n", c.LibDir)
		return nil
	case err != nil:
		fmt.Fprintf(w, "  [FAIL] cannot inspect library directory %s: %v\n", c.LibDir, err)
		return fmt.Errorf("inspecting library directory: %w", err)
	case !info.IsDir():
		fmt.Fprintf(w, "  [FAIL] %s is not a directory\n", c.LibDir)
		return fmt.Errorf("library directory %s is not a directory", c.LibDir)
	}
	fmt.Fprintf(w, "  [ OK ] library directory %s\n", c.LibDir)

	filename, err := platform.LibraryFilename()
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return err
	}

	libPath := c.LibraryPath(filename)
	if info, err := os.Stat(libPath); err != nil {
		fmt.Fprintf(w, "  [MISS] %s not installed (run '%s update')\n", filename, branding.CLIName())
	} else {
		fmt.Fprintf(w, "  [ OK ] %s (%d bytes, modified %s)\n", libPath, info.Size(), info.ModTime().UTC().Format("2006-01-02 15:04:05"))
	}

	if rec := record.NewStore(c.LibDir).Read(); rec != nil {
		fmt.Fprintf(w, "  [ OK ] version record: %s (last check %s)\n", rec.Version, rec.LastCheck)
	} else {
		fmt.Fprintf(w, "  [MISS] no version record at %s\n", c.RecordPath())
	}

	checkLeftovers(w, libPath, fix)
	return nil
}

// checkLeftovers looks for files a crashed install may have left next to the
// library and removes them when fix is set.
func checkLeftovers(w io.Writer, libPath string, fix bool) {
	for _, leftover := range []string{libPath + installer.TmpSuffix, libPath + installer.BackupSuffix} {
		if _, err := os.Stat(leftover); err != nil {
			continue
		}
		if !fix {
			fmt.Fprintf(w, "  [WARN] leftover from an interrupted update: %s (remove with --fix)\n", leftover)
			continue
		}
		if err := os.Remove(leftover); err != nil {
			fmt.Fprintf(w, "  [FAIL] cannot remove %s: %v\n", leftover, err)
			continue
		}
		fmt.Fprintf(w, "  [FIX ] removed %s\n", leftover)
	}
}
