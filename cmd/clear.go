package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clipflow/internal/artifacts"
	"clipflow/pkg/config"
)

var clearOlderThan time.Duration

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove old artifacts",
	Long:  `Delete stored thumbnails older than the given age.`,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().DurationVar(&clearOlderThan, "older-than", 30*24*time.Hour, "Delete artifacts older than this")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load(ctx)

	var (
		store artifacts.Store
		err   error
	)
	if cfg.GCSBucket != "" {
		store, err = artifacts.NewGCSStore(ctx, cfg.GCSBucket, cfg.Storage.GCSPrefix)
	} else {
		store, err = artifacts.NewLocalStore(cfg.Storage.ArtifactsDir)
	}
	if err != nil {
		return err
	}

	deleted, err := store.Purge(ctx, time.Now().Add(-clearOlderThan))
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d artifact(s)\n", deleted)
	return nil
}
