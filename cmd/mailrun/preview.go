package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailrun/mailrun/internal/model"
)

func newPreviewCmd() *cobra.Command {
	var (
		fullName string
		address  string
		subject  string
		text     bool
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the campaign template for a sample recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			renderer, err := a.renderer()
			if err != nil {
				return err
			}
			sender, _ := a.sender()
			msg, err := renderer.Render(model.Recipient{Email: address, FullName: fullName}, subject, sender)
			if err != nil {
				return err
			}

			body := msg.HTMLBody
			if text {
				body = msg.TextBody
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(body), 0o644); err != nil {
					return fmt.Errorf("failed to write preview: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Preview for %s written to %s\n", address, outPath)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\n%s\n", msg.Subject, body)
			return nil
		},
	}

	cmd.Flags().StringVarP(&fullName, "name", "n", "Sarah Johnson", "sample recipient full name")
	cmd.Flags().StringVar(&address, "email", "sarah.johnson@example.com", "sample recipient address")
	cmd.Flags().StringVarP(&subject, "subject", "s", "Preview", "subject line")
	cmd.Flags().BoolVar(&text, "text", false, "print the plain-text part instead of HTML")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the preview to a file")

	return cmd
}
