package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/zerobrew/internal/install"
)

var (
	upgradeForce     bool
	upgradeOverwrite bool
	upgradeDryRun    bool

	upgradeCmd = &cobra.Command{
		Use:   "upgrade [formula]...",
		Short: "Upgrade outdated formulas",
		Long: `Upgrades the named formulas, or every outdated formula when none are
named. Pinned formulas are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if upgradeDryRun {
				outdated, err := engine.Outdated(cmd.Context())
				if err != nil {
					return err
				}
				named := make(map[string]bool, len(args))
				for _, name := range args {
					named[name] = true
				}
				shown := 0
				for _, pkg := range outdated {
					if len(named) > 0 && !named[pkg.Name] {
						continue
					}
					if keg, err := engine.GetInstalled(pkg.Name); err == nil && keg != nil && keg.Pinned && !upgradeForce {
						continue
					}
					fmt.Printf("%s %s -> %s\n", pkg.Name, pkg.InstalledVersion, pkg.AvailableVersion)
					shown++
				}
				if shown == 0 {
					fmt.Println("Everything is up to date.")
				}
				return nil
			}

			report, err := engine.Upgrade(cmd.Context(), args, install.UpgradeOptions{
				Force:     upgradeForce,
				Overwrite: upgradeOverwrite,
			})
			if err != nil {
				return err
			}
			if len(report.Upgraded) == 0 && len(report.Failed) == 0 {
				fmt.Println("Everything is up to date.")
			}
			return printReport(report)
		},
	}
)

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeForce, "force", false, "upgrade pinned formulas too")
	upgradeCmd.Flags().BoolVar(&upgradeOverwrite, "overwrite", false, "replace conflicting prefix links")
	upgradeCmd.Flags().BoolVarP(&upgradeDryRun, "dry-run", "n", false, "show what would be upgraded")
}
