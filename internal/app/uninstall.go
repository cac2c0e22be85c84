package app

import (
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <formula>...",
	Short: "Remove installed formulas",
	Long: `Removes the keg, its prefix links, and its database records. The
content-addressable store entry is kept so a reinstall is near-instant;
run 'zerobrew gc' to reclaim the disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		report, err := engine.Uninstall(args)
		if err != nil {
			return err
		}
		return printReport(report)
	},
}

var autoremoveCmd = &cobra.Command{
	Use:   "autoremove",
	Short: "Remove dependencies no installed formula needs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		report, err := engine.Autoremove(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(report)
	},
}
