package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"roiassist-backend/lib/util/serviceutil"
)

var exportFormat *string
var exportOut *string

func init() {
	exportFormat = exportCmd.Flags().String("format", "csv", "Output format, csv or json.")
	exportOut = exportCmd.Flags().String("out", "", "Output file, defaults to stdout.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--format csv|json] [--out <path>]",
	Short: "Writes the stored initiatives to csv or json.",
	Run: func(cmd *cobra.Command, args []string) {
		service, cleanup := openService(readConfig())
		defer cleanup()

		out := os.Stdout
		if *exportOut != "" {
			f, err := os.Create(*exportOut)
			if err != nil {
				serviceutil.Fatal("failed to create output file", err)
			}
			defer f.Close()
			out = f
		}

		var err error
		switch *exportFormat {
		case "csv":
			err = service.ExportCSV(cmd.Context(), out)
		case "json":
			err = service.ExportJSON(cmd.Context(), out)
		default:
			err = fmt.Errorf("unknown format %q", *exportFormat)
		}
		if err != nil {
			serviceutil.Fatal("export failed", err)
		}
	},
}
