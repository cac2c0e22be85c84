package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed formulas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		kegs, err := engine.ListInstalled()
		if err != nil {
			return err
		}
		for _, keg := range kegs {
			marker := ""
			if keg.Pinned {
				marker = " (pinned)"
			}
			if !keg.Explicit {
				marker += " (dependency)"
			}
			fmt.Printf("%s %s%s\n", keg.Name, keg.Version, marker)
		}
		return nil
	},
}
