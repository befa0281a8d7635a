package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-fetches the detail page of every stored initiative and updates vote tallies and texts.",
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		result, err := service.Refresh(cmd.Context())
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}
		fmt.Printf("updated %d, failed %d\n", result.Updated, result.Failed)
	},
}
