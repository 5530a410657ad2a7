package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/campuschat/internal/proto"
)

var version = "0.1.0" // set at build time using -ldflags

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server and protocol versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "campuschat v%s (protocol %d)\n", version, proto.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
