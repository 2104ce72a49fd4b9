package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmylchreest/m3u-proxy/internal/version"
)

var versionJSON bool

// versionCmd prints detailed version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionJSON {
			cmd.Println(version.JSON())
			return
		}
		cmd.Println(version.String())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(versionCmd)
}
