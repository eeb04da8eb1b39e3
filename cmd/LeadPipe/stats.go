package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/notify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStatsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print lead statistics from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout(), a.cfg, format, time.Now())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

// runStats reads the store without taking the state lock, so it works next to a running service.
func runStats(ctx context.Context, out io.Writer, cfg config.Config, format string, now time.Time) error {
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}
	st, _, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx, api.StartOfDay(now, profile.FlowConfig().Location))
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}
	return writeStats(out, stats, format)
}

func writeStats(out io.Writer, s models.Stats, format string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(out, notify.FormatStats(s))
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}
