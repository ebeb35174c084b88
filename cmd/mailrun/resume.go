package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	var (
		latest bool
		pacing pacingFlags
	)

	cmd := &cobra.Command{
		Use:   "resume [campaign-id]",
		Short: "Continue a suspended or aborted campaign",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !latest {
				return errors.New("campaign id is required (or pass --latest)")
			}

			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			svc, err := a.campaignService(ctx, pacing.apply(cmd, a.cfg.Pacing))
			if err != nil {
				return err
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				id, err = svc.LatestID(ctx)
				if err != nil {
					return fmt.Errorf("failed to find latest checkpoint: %w", err)
				}
			}

			sess, err := svc.Resume(ctx, id)
			if err != nil {
				return err
			}
			return runSession(cmd, a, svc, sess)
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "resume the most recent checkpoint")
	pacing.register(cmd)

	return cmd
}
