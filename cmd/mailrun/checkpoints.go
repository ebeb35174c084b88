package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and prune saved campaign checkpoints",
	}
	cmd.AddCommand(newCheckpointsListCmd())
	cmd.AddCommand(newCheckpointsPruneCmd())
	return cmd
}

func newCheckpointsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved checkpoints, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.readOnlyService(cmd.Context())
			if err != nil {
				return err
			}
			infos, err := svc.Checkpoints(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAMPAIGN\tNAME\tSUBJECT\tPROGRESS\tSAVED")
			for _, info := range infos {
				progress := fmt.Sprintf("%d/%d", info.Cursor, info.Total)
				if info.Complete() {
					progress += " (complete)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					info.CampaignID, info.Name, info.Subject, progress, info.SavedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newCheckpointsPruneCmd() *cobra.Command {
	var (
		completed bool
		keep      int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete checkpoints according to the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("completed") {
				a.cfg.Checkpoint.PruneCompleted = completed
			}
			if cmd.Flags().Changed("keep") {
				a.cfg.Checkpoint.MaxSnapshots = keep
			}

			svc, err := a.readOnlyService(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := svc.Prune(cmd.Context())
			for _, id := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d checkpoint(s) removed\n", len(removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&completed, "completed", true, "remove checkpoints of finished campaigns")
	cmd.Flags().IntVar(&keep, "keep", 0, "keep at most this many checkpoints (0 = no cap)")

	return cmd
}
