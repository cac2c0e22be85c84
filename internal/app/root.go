// Package app defines the zerobrew command-line surface. Commands stay
// thin: parse flags, build the engine, delegate, print the report.
package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zerobrew/internal/install"
	"github.com/blackwell-systems/zerobrew/internal/logging"
	"github.com/blackwell-systems/zerobrew/internal/paths"
)

var (
	rootFlag string

	// RootCmd is the root command for zerobrew.
	RootCmd = &cobra.Command{
		Use:   "zerobrew",
		Short: "Fast Homebrew-compatible package manager",
		Long: `zerobrew installs Homebrew bottles through a content-addressable store:
bottles are downloaded in parallel, extracted once per content hash, and
materialized into the cellar with copy-on-write, so warm reinstalls take
milliseconds instead of minutes.

Examples:
  # Install a formula and its dependencies
  zerobrew install ripgrep

  # Remove a formula, keeping the store for fast reinstall
  zerobrew uninstall ripgrep

  # Upgrade everything that is outdated
  zerobrew upgrade

  # Reclaim disk from unreferenced store entries
  zerobrew gc`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(logging.Setup)

	RootCmd.PersistentFlags().StringVar(&rootFlag, "root", "",
		"zerobrew root directory (default: $ZEROBREW_ROOT or /opt/zerobrew)")
	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(uninstallCmd)
	RootCmd.AddCommand(upgradeCmd)
	RootCmd.AddCommand(autoremoveCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(linkCmd)
	RootCmd.AddCommand(unlinkCmd)
	RootCmd.AddCommand(pinCmd)
	RootCmd.AddCommand(unpinCmd)
	RootCmd.AddCommand(gcCmd)
	RootCmd.AddCommand(cleanupCmd)
	RootCmd.AddCommand(tapCmd)
	RootCmd.AddCommand(untapCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

// newEngine builds the install engine for the configured root.
func newEngine() (*install.Installer, error) {
	return install.New(paths.New(rootFlag), install.Config{})
}

// printReport renders an engine report and returns its first failure.
func printReport(report *install.Report) error {
	for _, name := range report.Installed {
		fmt.Printf("Installed %s\n", name)
	}
	for _, name := range report.Upgraded {
		fmt.Printf("Upgraded %s\n", name)
	}
	for _, name := range report.Removed {
		fmt.Printf("Removed %s\n", name)
	}
	for name, err := range report.Failed {
		fmt.Printf("Failed %s: %v\n", name, err)
	}
	return report.Err()
}
