package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/followup"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/spf13/cobra"
)

func newFollowUpCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "followup",
		Short: "Send reminders to prospects who went quiet",
		Long: `Runs the follow-up cycle on $FOLLOWUP_SCHEDULE without the conversation handler.
Use it when "serve --no-followup" runs elsewhere, or with --once from an external scheduler.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFollowUp(cmd.Context(), cmd.OutOrStdout(), a.cfg, a.serve, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run exactly one cycle and exit")
	return cmd
}

func runFollowUp(ctx context.Context, out io.Writer, cfg config.Config, opts serveOptions, once bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, _, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := buildTransport(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer tr.close()

	sched := followup.NewScheduler(st, tr.svc, profile.FollowUpConfig())
	if once {
		res, err := sched.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("follow-up cycle: %w", err)
		}
		fmt.Fprintf(out, "first reminders: %d\nsecond reminders: %d\ndemoted: %d\nskipped: %d\nfailed: %d\n",
			res.First, res.Second, res.Demoted, res.Skipped, res.Failed)
		return nil
	}

	loop, err := scheduler.NewLoop("followup", cfg.FollowUpSchedule, sched.Tick)
	if err != nil {
		return err
	}
	slog.Info("runFollowUp: running", "schedule", cfg.FollowUpSchedule)
	loop.Run(ctx)
	return nil
}
