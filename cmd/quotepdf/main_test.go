package main

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"quotepdf/internal/config"
)

func TestStartServer_GracefulShutdownOnSignal(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ":0"

	idleConnsClosed := make(chan struct{})
	go startServer(app, cfg, idleConnsClosed)

	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send SIGTERM: %v", err)
	}

	select {
	case <-idleConnsClosed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for graceful shutdown")
	}
}

func TestParseFlags(t *testing.T) {
	env := func(key string) string {
		if key == "CONFIG_PATH" {
			return "/etc/quotepdf.yaml"
		}
		return ""
	}

	f, err := parseFlags([]string{"quotepdf"}, env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.config != "/etc/quotepdf.yaml" || f.port != "" || f.engine != "" {
		t.Fatalf("unexpected defaults: %+v", f)
	}

	f, err = parseFlags([]string{"quotepdf", "-c", "local.yaml", "--port", "8080", "--engine", "rod", "--log-level", "debug"}, env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.config != "local.yaml" || f.port != "8080" || f.engine != "rod" || f.logLevel != "debug" {
		t.Fatalf("unexpected flags: %+v", f)
	}

	if _, err := parseFlags([]string{"quotepdf", "--nope"}, env); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestMain_UsesConfigAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cfg.yaml")
	err := os.WriteFile(cfgPath, []byte(`
server:
  host: "127.0.0.1"
  port: ":0"
  environment: "test"
logger:
  file: "`+filepath.Join(dir, "quotepdf.log")+`"
  level: "info"
  max_size_mb: 1
  max_backups: 1
  max_age_days: 1
cache:
  pdf_cache_enabled: true
  pdf_cache_ttl: 1m
  redis_host: "127.0.0.1:1"
  redis_rate_db: 0
  redis_pdf_db: 1
pdf:
  engine: "chromedp"
  default_paper: "A4"
  timeout_secs: 1
  max_concurrent: 2
`), 0o644)
	if err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	t.Setenv("PORT", "")
	t.Setenv("CHROME_BIN", "/bin/true")
	oldArgs := os.Args
	os.Args = []string{"quotepdf", "--config", cfgPath}
	t.Cleanup(func() { os.Args = oldArgs })

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal main: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for main to exit")
	}
}
