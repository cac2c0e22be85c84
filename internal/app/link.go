package app

import (
	"github.com/spf13/cobra"
)

var (
	linkOverwrite bool

	linkCmd = &cobra.Command{
		Use:   "link <formula>",
		Short: "Link an installed formula into the prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			return engine.Link(args[0], linkOverwrite)
		},
	}

	unlinkCmd = &cobra.Command{
		Use:   "unlink <formula>",
		Short: "Remove a formula's prefix links, keeping the keg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			return engine.Unlink(args[0])
		},
	}
)

func init() {
	linkCmd.Flags().BoolVar(&linkOverwrite, "overwrite", false, "replace conflicting prefix links")
}
