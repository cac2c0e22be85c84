package app

import (
	"github.com/spf13/cobra"
)

var (
	pinCmd = &cobra.Command{
		Use:   "pin <formula>...",
		Short: "Exclude formulas from upgrades",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, name := range args {
				if err := engine.Pin(name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	unpinCmd = &cobra.Command{
		Use:   "unpin <formula>...",
		Short: "Allow upgrades for pinned formulas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, name := range args {
				if err := engine.Unpin(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
)
