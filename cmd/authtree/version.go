package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/authtree"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of authtree",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "authtree version %s\n", strings.TrimSpace(authtree.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
