package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(version).ExecuteContext(ctx); err != nil {
		slog.Error("LeadPipe failed to run", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("LeadPipe exited successfully")
}

// Flags holds the persistent command line flag values. Empty values keep the environment setting.
type Flags struct {
	stateDir  string
	dbDSN     string
	profile   string
	transport string
	logLevel  string
}

// app carries the resolved configuration to the subcommands.
type app struct {
	flags Flags
	serve serveOptions
	cfg   config.Config
}

// newRootCmd builds the command tree. Running it without a subcommand starts the service.
func newRootCmd(version string) *cobra.Command {
	a := &app{}
	serveCmd := newServeCmd(a)

	rootCmd := &cobra.Command{
		Use:   "LeadPipe",
		Short: "Conversational lead qualification assistant",
		Long: `LeadPipe greets new prospects on Telegram or WhatsApp, qualifies them with three
questions, books meetings, answers free-form questions with an LLM and follows up
with prospects who go quiet.

Examples:
  LeadPipe serve --transport telegram
  LeadPipe followup --once
  LeadPipe stats --format yaml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = resolveConfig(config.Load(), a.flags)
			initializeLogger(config.ParseLogLevel(a.cfg.LogLevel))
			slog.Debug("Final configuration",
				"command", cmd.Name(),
				"state_dir", a.cfg.StateDir,
				"dsn_set", a.cfg.DatabaseURL != "",
				"transport", a.cfg.Transport,
				"profile", a.cfg.ProfilePath,
				"api_addr", a.cfg.APIAddr)
			return nil
		},
		RunE: serveCmd.RunE,
	}
	serveFlags(rootCmd, a)

	rootCmd.AddCommand(serveCmd, newFollowUpCmd(a), newStatsCmd(a))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.stateDir, "state-dir", "", "state directory for LeadPipe data (overrides $LEADPIPE_STATE_DIR)")
	pf.StringVar(&a.flags.dbDSN, "db-dsn", "", "SQLite path or Postgres DSN (overrides $DATABASE_URL)")
	pf.StringVar(&a.flags.profile, "profile", "", "business profile YAML (overrides $LEADPIPE_PROFILE)")
	pf.StringVar(&a.flags.transport, "transport", "", "telegram, whatsapp or twilio (overrides $LEADPIPE_TRANSPORT)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (overrides $LOG_LEVEL)")

	return rootCmd
}

// resolveConfig applies flag overrides on top of the environment configuration.
func resolveConfig(cfg config.Config, f Flags) config.Config {
	cfg = cfg.WithStateDir(f.stateDir)
	if f.dbDSN != "" {
		cfg.DatabaseURL = f.dbDSN
	}
	if f.profile != "" {
		cfg.ProfilePath = f.profile
	}
	if f.transport != "" {
		cfg.Transport = f.transport
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg
}

// initializeLogger sets up structured logging at level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
