package app

import (
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zerobrew/internal/install"
)

var (
	installForce     bool
	installOverwrite bool
	installNoLink    bool

	installCmd = &cobra.Command{
		Use:   "install <formula>...",
		Short: "Install formulas from bottles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			report, err := engine.Install(cmd.Context(), args, install.Options{
				Force:     installForce,
				Overwrite: installOverwrite,
				NoLink:    installNoLink,
			})
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}
)

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "reinstall even if already current")
	installCmd.Flags().BoolVar(&installOverwrite, "overwrite", false, "replace conflicting prefix links")
	installCmd.Flags().BoolVar(&installNoLink, "no-link", false, "install without linking into the prefix")
}
