package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/authtree/internal/presentation/tui"
	"github.com/aretw0/authtree/pkg/adapters/file"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow...]",
	Short: "Check flows for embedding cycles",
	Long: `Validates the named flows of a realm (every flow when none is named).
Flow files given with --file are validated against the registry without being stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		realm, _ := cmd.Flags().GetString("realm")
		paths, _ := cmd.Flags().GetStringSlice("file")

		a, err := buildApp(ctx, globals.cfg, globals.logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var flows []*domain.Flow
		for _, path := range paths {
			flow, err := file.LoadFile(path)
			if err != nil {
				return err
			}
			flows = append(flows, flow)
		}
		if len(args) == 0 && len(paths) == 0 {
			args, err = a.flows.ListFlows(ctx, realm)
			if err != nil {
				return err
			}
		}
		for _, name := range args {
			flow, err := a.flows.GetFlow(ctx, realm, name)
			if err != nil {
				return err
			}
			flows = append(flows, flow)
		}

		p := tui.NewPrinter(cmd.OutOrStdout())
		failed := 0
		for _, flow := range flows {
			if err := a.engine.ValidateFlow(ctx, flow); err != nil {
				failed++
				p.Failure("%s: %v", flow.Name(), err)
				continue
			}
			p.Success("%s", flow.Name())
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d flows are invalid", failed, len(flows))
		}
		if len(flows) == 0 {
			return errors.New("no flows to validate")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("realm", "r", "/", "Realm of the flows")
	validateCmd.Flags().StringSliceP("file", "f", nil, "Flow definition files to validate")
}
