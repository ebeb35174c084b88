package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailrun/mailrun/internal/recipient"
)

func newSendCmd() *cobra.Command {
	var (
		csvPath string
		subject string
		name    string
		sender  string
		pacing  pacingFlags
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Start a new campaign from a recipient CSV",
		Long: `Start a new campaign. The CSV needs a column whose header contains
"email" and one whose header contains "name". Press Ctrl-C to suspend the
campaign; recipients already processed are kept in the checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("failed to open recipient list: %w", err)
			}
			recipients, err := recipient.Load(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			if sender == "" {
				sender, _ = a.sender()
			}

			ctx := cmd.Context()
			svc, err := a.campaignService(ctx, pacing.apply(cmd, a.cfg.Pacing))
			if err != nil {
				return err
			}
			sess, err := svc.Start(ctx, name, subject, sender, recipients)
			if err != nil {
				return err
			}
			return runSession(cmd, a, svc, sess)
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "recipient list (CSV)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "email subject")
	cmd.Flags().StringVarP(&name, "name", "n", "", "campaign name, used in the report file name")
	cmd.Flags().StringVar(&sender, "sender", "", "From address (default: from the transport config)")
	pacing.register(cmd)
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
