package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
	"roiassist-backend/services/initiatives/db"
)

var listStatus *string

func init() {
	listStatus = listCmd.Flags().String("status", "", "Only show initiatives with this status (new, voted, ignored).")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list [--status <status>]",
	Short: "Prints the stored initiatives.",
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		var records []db.Initiative
		var err error
		if *listStatus != "" {
			records, err = service.ListByStatus(cmd.Context(), *listStatus)
		} else {
			records, err = service.List(cmd.Context())
		}
		if err != nil {
			serviceutil.Fatal("failed to list initiatives", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "External ID", "Title", "Level", "For", "Against", "Ends", "Status", "Vote"})
		for _, record := range records {
			vote := ""
			if record.Vote.Valid {
				vote = record.Vote.String
			}
			t.AppendRow(table.Row{
				record.ID,
				record.ExternalID,
				record.Title,
				record.Level,
				record.Votes,
				record.AntiVotes,
				record.EndDate,
				record.Status,
				vote,
			})
		}
		t.Render()
	},
}
