package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <flow>",
	Short: "Print a flow and its inner trees as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		realm, _ := cmd.Flags().GetString("realm")

		a, err := buildApp(cmd.Context(), globals.cfg, globals.logger)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.engine.Graph(cmd.Context(), realm, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("realm", "r", "/", "Realm of the flow")
}
