package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	tapCmd = &cobra.Command{
		Use:   "tap [user/repo]",
		Short: "Register a third-party formula repository",
		Long: `With no arguments, lists registered taps. With a user/repo argument,
registers the tap; its cached formulas under <root>/taps/<user>/<repo>/
are consulted for user/repo/formula names before the central API.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if len(args) == 0 {
				taps, err := engine.ListTaps()
				if err != nil {
					return err
				}
				for _, tap := range taps {
					fmt.Println(tap.Name)
				}
				return nil
			}

			name := args[0]
			if strings.Count(name, "/") != 1 {
				return fmt.Errorf("tap name must look like user/repo, got %q", name)
			}
			parts := strings.SplitN(name, "/", 2)
			url := fmt.Sprintf("https://github.com/%s/homebrew-%s", parts[0], parts[1])
			return engine.AddTap(name, url)
		},
	}

	untapCmd = &cobra.Command{
		Use:   "untap <user/repo>",
		Short: "Remove a registered tap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			removed, err := engine.RemoveTap(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("tap %q is not registered", args[0])
			}
			return nil
		},
	}
)
