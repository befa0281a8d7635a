package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
)

var clearYes *bool

func init() {
	clearYes = clearCmd.Flags().Bool("yes", false, "Skip the confirmation prompt.")
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear [--yes]",
	Short: "Deletes every stored initiative.",
	Run: func(cmd *cobra.Command, args []string) {
		if !*clearYes {
			fmt.Print("delete every stored initiative? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("aborted")
				return
			}
		}

		service, cleanup := openService(readConfig())
		defer cleanup()

		if err := service.Clear(cmd.Context()); err != nil {
			serviceutil.Fatal("failed to clear database", err)
		}
		fmt.Println("cleared")
	},
}
