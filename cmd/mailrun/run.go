package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/dispatch"
	"github.com/mailrun/mailrun/internal/model"
	"github.com/mailrun/mailrun/internal/service"
)

// pacingFlags overrides the configured pacing for a single run.
type pacingFlags struct {
	mode     string
	workers  int
	minDelay time.Duration
	maxDelay time.Duration
}

func (p *pacingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.mode, "mode", "", "pacing mode: concurrent or sequential")
	cmd.Flags().IntVar(&p.workers, "workers", 0, "concurrent sends in concurrent mode")
	cmd.Flags().DurationVar(&p.minDelay, "min-delay", 0, "shortest pause between sends in sequential mode")
	cmd.Flags().DurationVar(&p.maxDelay, "max-delay", 0, "longest pause between sends in sequential mode")
}

func (p *pacingFlags) apply(cmd *cobra.Command, cfg config.PacingConfig) dispatch.Pacing {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = p.mode
	}
	if flags.Changed("workers") {
		cfg.Workers = p.workers
	}
	if flags.Changed("min-delay") {
		cfg.MinDelay = p.minDelay
	}
	if flags.Changed("max-delay") {
		cfg.MaxDelay = p.maxDelay
	}
	return dispatch.PacingFromConfig(cfg)
}

// runSession runs sess until it finishes or the process receives SIGINT or
// SIGTERM. An interrupted campaign is left suspended for a later resume.
func runSession(cmd *cobra.Command, a *app, svc *service.CampaignService, sess *service.Session) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Campaign %s: %d recipients, %d already processed\n",
		sess.Campaign.ID, sess.Campaign.Total(), sess.Campaign.Cursor)

	res, err := svc.Run(ctx, sess, progressPrinter(cmd.ErrOrStderr()))
	if res != nil {
		printResult(out, sess.Campaign, res)
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && !errors.Is(err, model.ErrPersistence) {
		a.log.Debug().Err(err).Msg("run interrupted")
		return nil
	}
	return err
}

func progressPrinter(w io.Writer) dispatch.ProgressFunc {
	return func(p dispatch.Progress) {
		fmt.Fprintf(w, "[%d/%d] %-40s %-22s eta %s\n",
			p.Completed, p.Total, p.Email, p.Status, p.Remaining.Round(time.Second))
	}
}

func printResult(w io.Writer, c *model.Campaign, res *service.Result) {
	snap := res.Snapshot
	fmt.Fprintf(w, "Campaign %s %s in %s: %d delivered, %d failed, %d pending\n",
		c.ID, res.State, res.Duration.Round(time.Second), snap.Delivered, snap.Failed, snap.Pending())

	switch res.State {
	case model.CampaignSuspended:
		fmt.Fprintf(w, "Resume with: mailrun resume %s\n", c.ID)
	case model.CampaignAborted:
		if snap.Pending() > 0 {
			fmt.Fprintf(w, "Fix the transport credentials, then: mailrun resume %s\n", c.ID)
		}
	}
	if res.ReportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", res.ReportPath)
	}
	if res.ReportURI != "" {
		fmt.Fprintf(w, "Report uploaded: %s\n", res.ReportURI)
	}
}
