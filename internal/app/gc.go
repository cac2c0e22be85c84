package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cleanupPruneDays int

	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "Remove unreferenced store entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			removed, err := engine.GC()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d store entries\n", len(removed))
			return nil
		},
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Garbage-collect the store and prune caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Cleanup(cleanupPruneDays)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d store entries, %d blobs, %d partial downloads (%d bytes freed)\n",
				result.StoreEntriesRemoved, result.BlobsRemoved, result.PartialsRemoved, result.BytesFreed)
			return nil
		},
	}
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupPruneDays, "prune", 30, "remove unused blobs older than this many days")
}
