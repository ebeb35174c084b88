package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSuppressionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suppression",
		Aliases: []string{"unsubscribed"},
		Short:   "Manage addresses excluded from new campaigns",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unsubscribed addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.suppressionList()
			if err != nil {
				return err
			}
			entries, err := list.Entries(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EMAIL\tSOURCE\tSINCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Email, e.Source, e.At.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <email>...",
		Short: "Exclude addresses from future campaigns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.suppressionList()
			if err != nil {
				return err
			}
			for _, addr := range args {
				if err := list.Add(cmd.Context(), addr, "manual"); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d address(es) suppressed\n", len(args))
			return nil
		},
	})

	return cmd
}
