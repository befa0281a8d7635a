package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
	"roiassist-backend/services/initiatives"
)

var syncPages *int
var syncStartUrl *string

func init() {
	syncPages = syncCmd.Flags().Int("pages", 0, "Number of listing pages to walk, defaults to the config value.")
	syncStartUrl = syncCmd.Flags().String("start-url", "", "Listing page to start from, defaults to the federal listing.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--pages <n>] [--start-url <url>]",
	Short: "Collects new initiatives from the listing into the database.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		service, cleanup := openService(cfg)
		defer cleanup()

		startUrl := cfg.StartUrl
		if *syncStartUrl != "" {
			startUrl = *syncStartUrl
		}
		maxPages := cfg.MaxPages
		if *syncPages > 0 {
			maxPages = *syncPages
		}

		t1 := time.Now()
		result, err := service.Sync(cmd.Context(), initiatives.SyncOptions{
			StartUrl: startUrl,
			MaxPages: maxPages,
		})
		if err != nil {
			serviceutil.Fatal("sync failed", err)
		}
		slog.Info("sync time", "seconds", time.Since(t1).Seconds())

		fmt.Printf("inserted %d, skipped %d already stored\n", result.Inserted, result.Skipped)
		for _, record := range result.Records {
			fmt.Printf("  %s  %s\n", record.ExternalID, record.Title)
		}
	},
}
