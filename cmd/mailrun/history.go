package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List finished campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			hist, err := a.historyLog(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := hist.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No campaigns recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAMPAIGN\tNAME\tSUBJECT\tTOTAL\tDELIVERED\tFAILED\tSTATE\tFINISHED")
			for _, s := range summaries {
				finished := "-"
				if !s.FinishedAt.IsZero() {
					finished = s.FinishedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					s.CampaignID, s.Name, s.Subject, s.Total, s.Delivered, s.Failed, s.State, finished)
			}
			return w.Flush()
		},
	}
}
