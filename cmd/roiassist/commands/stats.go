package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints counts of stored initiatives by status.",
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		stats, err := service.Stats(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to compute stats", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"total", stats.Total},
			{"new", stats.New},
			{"voted", stats.Voted},
			{"ignored", stats.Ignored},
			{"added last 7d", stats.AddedThisWeek},
		})
		t.Render()
	},
}
