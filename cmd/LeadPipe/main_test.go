package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/config"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// isolateEnv clears every variable the commands read so the host environment cannot leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LEADPIPE_STATE_DIR", "DATABASE_URL", "LEADPIPE_TRANSPORT", "TELEGRAM_BOT_TOKEN",
		"WHATSAPP_DB_DSN", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
		"TWILIO_WEBHOOK_URL", "OPENAI_API_KEY", "OPENAI_MODEL", "OWNER_ID", "API_ADDR",
		"LOG_LEVEL", "LEADPIPE_PROFILE", "FOLLOWUP_SCHEDULE", "FOLLOWUP_ENABLED", "GENAI_DEBUG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestResolveConfig(t *testing.T) {
	isolateEnv(t)
	base := config.FromEnv()

	cfg := resolveConfig(base, Flags{})
	if cfg != base {
		t.Errorf("empty flags changed config: %+v", cfg)
	}

	cfg = resolveConfig(base, Flags{stateDir: "/srv/lp", transport: "twilio", logLevel: "debug", profile: "/etc/lp.yaml"})
	if cfg.StateDir != "/srv/lp" {
		t.Errorf("Expected state dir /srv/lp, got %q", cfg.StateDir)
	}
	if want := filepath.Join("/srv/lp", config.DefaultDBFileName); cfg.DatabaseURL != want {
		t.Errorf("Expected derived DSN %q, got %q", want, cfg.DatabaseURL)
	}
	if cfg.Transport != "twilio" || cfg.LogLevel != "debug" || cfg.ProfilePath != "/etc/lp.yaml" {
		t.Errorf("flags not applied: %+v", cfg)
	}

	cfg = resolveConfig(base, Flags{stateDir: "/srv/lp", dbDSN: "postgres://u@h/db"})
	if cfg.DatabaseURL != "postgres://u@h/db" {
		t.Errorf("Expected --db-dsn to win, got %q", cfg.DatabaseURL)
	}
}

func TestEnsureDatabaseDir(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "a", "b", "leadpipe.db")
	if err := ensureDatabaseDir(path); err != nil {
		t.Fatalf("ensureDatabaseDir: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("Expected directory to exist: %v", err)
	}

	dsn := "file:" + filepath.Join(dir, "wa", "whatsmeow.db") + "?_foreign_keys=on"
	if err := ensureDatabaseDir(dsn); err != nil {
		t.Fatalf("ensureDatabaseDir(%q): %v", dsn, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "wa")); err != nil {
		t.Errorf("Expected directory for file: DSN to exist: %v", err)
	}

	for _, dsn := range []string{"postgres://u@h/db", "host=localhost dbname=lp", ":memory:"} {
		if err := ensureDatabaseDir(dsn); err != nil {
			t.Errorf("ensureDatabaseDir(%q) = %v", dsn, err)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	if n := len(buildGenAIOptions(config.Config{})); n != 0 {
		t.Errorf("Expected no GenAI options, got %d", n)
	}
	if n := len(buildGenAIOptions(config.Config{OpenAIKey: "k", OpenAIModel: "m", GenAIDebug: true})); n != 3 {
		t.Errorf("Expected 3 GenAI options, got %d", n)
	}
	if n := len(buildWhatsAppOptions(config.Config{WhatsAppDSN: "file:x.db"}, serveOptions{})); n != 1 {
		t.Errorf("Expected 1 WhatsApp option, got %d", n)
	}
	if n := len(buildWhatsAppOptions(config.Config{WhatsAppDSN: "file:x.db"}, serveOptions{qrOutput: "qr.txt", numeric: true})); n != 3 {
		t.Errorf("Expected 3 WhatsApp options, got %d", n)
	}
	if n := len(buildTwilioOptions(config.Config{})); n != 3 {
		t.Errorf("Expected 3 Twilio options, got %d", n)
	}
}

func TestBuildTransport(t *testing.T) {
	ctx := context.Background()

	tr, err := buildTransport(ctx, config.Config{Transport: config.TransportTelegram, TelegramToken: "TOKEN"}, serveOptions{})
	if err != nil {
		t.Fatalf("telegram transport: %v", err)
	}
	if tr.svc.Name() != "telegram" || tr.webhook != nil {
		t.Errorf("unexpected telegram transport %+v", tr)
	}
	tr.close()

	tr, err = buildTransport(ctx, config.Config{
		Transport:        config.TransportTwilio,
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "secret",
		TwilioFromNumber: "+15550000000",
		TwilioWebhookURL: "https://example.com/twilio/webhook",
	}, serveOptions{})
	if err != nil {
		t.Fatalf("twilio transport: %v", err)
	}
	if tr.svc.Name() != "twilio" || tr.webhook == nil {
		t.Errorf("Expected twilio transport with webhook, got %+v", tr)
	}

	if _, err := buildTransport(ctx, config.Config{Transport: config.TransportTelegram}, serveOptions{}); err == nil {
		t.Error("Expected error for telegram without token")
	}
	if _, err := buildTransport(ctx, config.Config{Transport: "pigeon"}, serveOptions{}); err == nil {
		t.Error("Expected error for unknown transport")
	}
}

func TestWriteStats(t *testing.T) {
	s := models.Stats{
		TotalProspects:    3,
		NewToday:          1,
		ByTier:            map[models.Tier]int{models.TierHot: 2, models.TierNew: 1},
		ScheduledMeetings: 1,
	}

	var buf bytes.Buffer
	if err := writeStats(&buf, s, "text"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Всего лидов: 3") {
		t.Errorf("text output missing total: %q", buf.String())
	}

	buf.Reset()
	if err := writeStats(&buf, s, "json"); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if decoded["total_prospects"] != float64(3) {
		t.Errorf("json total_prospects = %v", decoded["total_prospects"])
	}

	buf.Reset()
	if err := writeStats(&buf, s, "yaml"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "total_prospects: 3") || !strings.Contains(buf.String(), "HOT: 2") {
		t.Errorf("yaml output unexpected: %q", buf.String())
	}

	if err := writeStats(&buf, s, "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestStatsCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	dsn := filepath.Join(dir, "leadpipe.db")

	st, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	now := time.Now()
	for _, p := range []models.Prospect{
		{ID: "1", Tier: models.TierHot, CreatedAt: now, UpdatedAt: now},
		{ID: "2", Tier: models.TierCold, CreatedAt: now.Add(-72 * time.Hour), UpdatedAt: now},
	} {
		if err := st.SaveProspect(context.Background(), p); err != nil {
			t.Fatalf("SaveProspect: %v", err)
		}
	}
	st.Close()

	var out bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"stats", "--state-dir", dir, "--db-dsn", dsn, "--format", "json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("stats command: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json %q: %v", out.String(), err)
	}
	if decoded["total_prospects"] != float64(2) {
		t.Errorf("total_prospects = %v", decoded["total_prospects"])
	}
}

func TestFollowUpOnceCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv("TELEGRAM_BOT_TOKEN", "TOKEN")

	var out bytes.Buffer
	cmd := newRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"followup", "--once", "--state-dir", dir, "--transport", "telegram"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("followup command: %v", err)
	}
	if !strings.Contains(out.String(), "first reminders: 0") {
		t.Errorf("unexpected output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultDBFileName)); err != nil {
		t.Errorf("Expected database in state dir: %v", err)
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	isolateEnv(t)
	cmd := newRootCmd("test")
	cmd.SetArgs([]string{"serve", "--state-dir", t.TempDir(), "--transport", "telegram"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
		t.Errorf("Expected missing token error, got %v", err)
	}
}
