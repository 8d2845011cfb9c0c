// Package rodengine renders PDFs with go-rod as an alternative to chromedp.
package rodengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"quotepdf/internal/config"
	"quotepdf/internal/domain"
	"quotepdf/internal/infra/logging"
)

// ErrBrowserNotFound is returned when no Chrome or Chromium binary is
// configured or installed. Browsers are never downloaded at request time.
var ErrBrowserNotFound = errors.New("no chrome binary found")

// lookPath is launcher.LookPath, swapped out in tests.
var lookPath = launcher.LookPath

// Engine starts one rod-controlled browser per session.
type Engine struct {
	cfg config.Config
}

// NewEngine returns an Engine configured from cfg.PDF.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{cfg: cfg}
}

type session struct {
	cancel     context.CancelFunc
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	profileDir string
	deadline   time.Time
	idleWindow time.Duration

	mu       sync.Mutex
	released bool
}

func (e *Engine) browserBin() (string, error) {
	if e.cfg.PDF.ChromePath != "" {
		return e.cfg.PDF.ChromePath, nil
	}
	if found, ok := lookPath(); ok {
		return found, nil
	}
	return "", ErrBrowserNotFound
}

func (e *Engine) newLauncher(ctx context.Context, bin, profileDir string) *launcher.Launcher {
	return launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(true).
		Leakless(false).
		UserDataDir(profileDir).
		NoSandbox(e.cfg.PDF.ChromeNoSandbox).
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
}

// Acquire launches a browser and opens a blank page in it. Launching is
// bounded by ctx and by the render timeout.
func (e *Engine) Acquire(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin, err := e.browserBin()
	if err != nil {
		return nil, err
	}
	base := e.cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	} else if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "roddata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}

	deadline := time.Now().Add(e.cfg.RenderTimeout())
	sessCtx, cancel := context.WithDeadline(ctx, deadline)
	s := &session{
		cancel:     cancel,
		launcher:   e.newLauncher(sessCtx, bin, dir),
		profileDir: dir,
		deadline:   deadline,
		idleWindow: e.cfg.NetworkIdle(),
	}

	controlURL, err := s.launcher.Launch()
	if err != nil {
		_ = s.Release()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s.browser = rod.New().Context(sessCtx).ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		_ = s.Release()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.page, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = s.Release()
		return nil, fmt.Errorf("open page: %w", err)
	}

	logging.Debug("Rod session started", "profile_dir", dir)
	return s, nil
}

func (s *session) pageFor(ctx context.Context) (*rod.Page, context.CancelFunc, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released || s.page == nil {
		return nil, nil, domain.ErrSessionReleased
	}
	runCtx, cancel := context.WithDeadline(ctx, s.deadline)
	return s.page.Context(runCtx), cancel, nil
}

// Load sets the document and waits until no request has been in flight for
// the idle window.
func (s *session) Load(ctx context.Context, html string) error {
	p, cancel, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	includes, excludes, excludeTypes := idleFilters()
	wait := p.WaitRequestIdle(s.idleWindow, includes, excludes, excludeTypes)
	if err := p.SetDocumentContent(html); err != nil {
		return err
	}
	wait()
	return p.GetContext().Err()
}

// idleFilters makes WaitRequestIdle track every request. A nil type list
// would make rod skip images, fonts and media.
func idleFilters() (includes, excludes []string, excludeTypes []proto.NetworkResourceType) {
	return nil, nil, []proto.NetworkResourceType{}
}

// ExportPDF prints the current document.
func (s *session) ExportPDF(ctx context.Context, opts domain.PrintOptions) ([]byte, error) {
	p, cancel, err := s.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	reader, err := p.PDF(printRequest(opts))
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return buf, nil
}

func printRequest(opts domain.PrintOptions) *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(opts.PaperWidth),
		PaperHeight:     floatPtr(opts.PaperHeight),
		MarginTop:       floatPtr(opts.MarginTop),
		MarginRight:     floatPtr(opts.MarginRight),
		MarginBottom:    floatPtr(opts.MarginBottom),
		MarginLeft:      floatPtr(opts.MarginLeft),
		PrintBackground: opts.PrintBackground,
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// Release closes the browser, kills the process and removes the profile.
func (s *session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil && s.launcher.PID() != 0 {
		s.launcher.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := os.RemoveAll(s.profileDir); err != nil {
		return fmt.Errorf("remove browser profile: %w", err)
	}
	logging.Debug("Rod session released", "profile_dir", s.profileDir)
	return nil
}
