package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
	"roiassist-backend/services/initiatives/db"
)

func init() {
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(unvoteCmd)
	rootCmd.AddCommand(ignoreCmd)
}

func parseRecordId(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		serviceutil.Fatal("invalid initiative id", err)
	}
	return id
}

var voteCmd = &cobra.Command{
	Use:   "vote <id> <for|against|ignore>",
	Short: "Records a voting decision for a stored initiative.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		id := parseRecordId(args[0])
		err := service.SetVote(cmd.Context(), id, args[1])
		if err != nil {
			serviceutil.Fatal("failed to record vote", err)
		}
		fmt.Printf("recorded %q for initiative %d\n", args[1], id)
	},
}

var unvoteCmd = &cobra.Command{
	Use:   "unvote <id>",
	Short: "Clears a previously recorded decision.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		id := parseRecordId(args[0])
		err := service.RevokeVote(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to clear vote", err)
		}
		fmt.Printf("cleared the decision for initiative %d\n", id)
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <id>",
	Short: "Takes an initiative out of the review queue without voting on it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		id := parseRecordId(args[0])
		err := service.SetStatus(cmd.Context(), id, db.StatusIgnored)
		if err != nil {
			serviceutil.Fatal("failed to ignore initiative", err)
		}
		fmt.Printf("ignoring initiative %d\n", id)
	},
}
