package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/followup"
	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/notify"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"github.com/spf13/cobra"
)

// serveOptions holds the flags that only matter when a transport is brought up.
type serveOptions struct {
	qrOutput    string
	numeric     bool
	apiAddr     string
	noFollowUps bool
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant, the follow-up loop and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a.cfg, a.serve)
		},
	}
	serveFlags(cmd, a)
	return cmd
}

// serveFlags registers the serve flags on cmd. The root command shares them because it serves by default.
func serveFlags(cmd *cobra.Command, a *app) {
	f := cmd.Flags()
	f.StringVar(&a.serve.qrOutput, "qr-output", "", "path to write the WhatsApp login QR code")
	f.BoolVar(&a.serve.numeric, "numeric-code", false, "use a numeric WhatsApp login code instead of a QR code")
	f.StringVar(&a.serve.apiAddr, "api-addr", "", "admin API address (overrides $API_ADDR)")
	f.BoolVar(&a.serve.noFollowUps, "no-followup", false, "do not run the follow-up loop in this process")
}

// runServe brings every component up and blocks until ctx is cancelled or the API server fails.
func runServe(ctx context.Context, cfg config.Config, opts serveOptions) error {
	if opts.apiAddr != "" {
		cfg.APIAddr = opts.apiAddr
	}
	if opts.noFollowUps {
		cfg.FollowUpEnabled = false
	}
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

	st, pp, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := genai.NewClient(buildGenAIOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}
	assistant := genai.NewAssistant(llm, profile.Business())

	tr, err := buildTransport(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer tr.close()

	flowCfg := profile.FlowConfig()
	notifier := notify.NewNotifier(pp.OutboxRepo(), cfg.OwnerID, assistant, flowCfg.Location)
	engine := flow.NewEngine(st, flow.NewMachine(flowCfg, assistant, st), tr.svc, notifier, cfg.OwnerID)

	outbox := store.NewOutboxSender(pp.OutboxRepo(), notify.OutboxSender(deliverVia(tr.svc)), 0)
	if err := outbox.RecoverStaleMessages(ctx); err != nil {
		slog.Warn("runServe: outbox recovery failed", "error", err)
	}

	var loop *scheduler.Loop
	if cfg.FollowUpEnabled {
		sched := followup.NewScheduler(st, tr.svc, profile.FollowUpConfig())
		if loop, err = scheduler.NewLoop("followup", cfg.FollowUpSchedule, sched.Tick); err != nil {
			return err
		}
	} else {
		slog.Info("runServe: follow-up loop disabled")
	}

	apiOpts := []api.Option{api.WithLocation(flowCfg.Location)}
	if tr.webhook != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(tr.webhook))
	}
	server := api.NewServer(st, apiOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := tr.svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", tr.svc.Name(), err)
	}
	handler := messaging.NewResponseHandler(tr.svc, engine, pp.DedupRepo())
	handler.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outbox.Run(ctx)
	}()
	if loop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	slog.Info("LeadPipe serving", "transport", tr.svc.Name(), "business", profile.BusinessName, "api_addr", cfg.APIAddr)
	err = server.Run(ctx, cfg.APIAddr)

	cancel()
	wg.Wait()
	if stopErr := tr.svc.Stop(); stopErr != nil {
		slog.Warn("runServe: transport stop failed", "error", stopErr)
	}
	handler.Wait()
	return err
}

// transport is the messaging service selected by configuration.
type transport struct {
	svc     messaging.Service
	webhook http.HandlerFunc // set for Twilio, mounted on the admin API
	close   func()
}

// buildTransport constructs, but does not start, the configured messaging service.
func buildTransport(ctx context.Context, cfg config.Config, opts serveOptions) (*transport, error) {
	switch cfg.Transport {
	case config.TransportTelegram:
		svc, err := messaging.NewTelegramService(cfg.TelegramToken)
		if err != nil {
			return nil, err
		}
		return &transport{svc: svc, close: func() {}}, nil

	case config.TransportWhatsApp:
		if err := ensureDatabaseDir(cfg.WhatsAppDSN); err != nil {
			return nil, err
		}
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(cfg, opts)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return &transport{svc: messaging.NewWhatsAppService(client), close: client.Disconnect}, nil

	case config.TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var twOpts []messaging.TwilioOption
		if cfg.TwilioWebhookURL != "" {
			twOpts = append(twOpts, messaging.WithWebhookURL(cfg.TwilioWebhookURL))
		} else {
			slog.Warn("buildTransport: TWILIO_WEBHOOK_URL not set, inbound signatures are not verified")
		}
		svc := messaging.NewTwilioService(client, twOpts...)
		return &transport{svc: svc, webhook: svc.WebhookHandler, close: func() {}}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// deliverVia sends owner alerts over the prospect transport.
func deliverVia(svc messaging.Service) notify.DeliverFunc {
	return func(ctx context.Context, to, text string) error {
		_, err := svc.Send(ctx, models.OutgoingMessage{To: to, Text: text})
		return err
	}
}

// openStore opens the store for dsn; every backend also provides the outbox and dedup repositories.
func openStore(dsn string) (store.Store, store.PersistenceProvider, error) {
	st, err := store.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	pp, ok := st.(store.PersistenceProvider)
	if !ok {
		st.Close()
		return nil, nil, fmt.Errorf("store %T does not provide an outbox", st)
	}
	return st, pp, nil
}

// ensureDatabaseDir creates the parent directory of a file-based whatsmeow device store DSN.
func ensureDatabaseDir(dsn string) error {
	if store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	slog.Debug("Creating state directory for file-based database", "state_dir", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(cfg config.Config) []genai.Option {
	var opts []genai.Option
	if cfg.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.OpenAIKey))
	}
	if cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAIModel))
	}
	if cfg.GenAIDebug {
		opts = append(opts, genai.WithDebugMode(cfg.StateDir))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(cfg config.Config, opts serveOptions) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.WhatsAppDSN)}
	if opts.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(opts.qrOutput))
	}
	if opts.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(cfg config.Config) []twiliowhatsapp.Option {
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
		twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
		twiliowhatsapp.WithFromNumber(cfg.TwilioFromNumber),
	}
}
