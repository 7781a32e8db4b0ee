package main

import (
	"context"
	"errors"

	"github.com/aretw0/authtree"
	"github.com/aretw0/authtree/internal/presentation/tui"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <flow>",
	Short: "Authenticate interactively through a flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		realm, _ := cmd.Flags().GetString("realm")
		quiet, _ := cmd.Flags().GetBool("quiet")

		a, err := buildApp(cmd.Context(), globals.cfg, globals.logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if !quiet {
			tui.PrintBanner(cmd.OutOrStdout())
		}

		flow := args[0]
		advance := func(ctx context.Context, authID string, answers map[string]any) (*domain.Step, string, error) {
			step, err := a.engine.Advance(ctx, authtree.AdvanceRequest{
				Realm:    realm,
				Flow:     flow,
				AuthID:   authID,
				Answers:  answers,
				ClientIP: "127.0.0.1",
			})
			if err != nil || step.Pending == nil {
				return step, "", err
			}
			next, err := a.engine.AuthID(step.State)
			return step, next, err
		}

		r := runner.New(advance,
			runner.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
			runner.WithLogger(globals.logger),
			runner.WithInterrupts(),
		)
		result, err := r.Run(cmd.Context())
		if err != nil {
			return err
		}
		if result.FinalOutcome != domain.OutcomeSuccess {
			return errors.New("authentication failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("realm", "r", "/", "Realm of the flow")
	runCmd.Flags().BoolP("quiet", "q", false, "Don't print the banner")
}
