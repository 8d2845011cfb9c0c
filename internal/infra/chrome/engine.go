package chrome

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"quotepdf/internal/config"
	"quotepdf/internal/domain"
	"quotepdf/internal/infra/logging"
)

// Engine launches one headless Chrome process per session via chromedp.
type Engine struct {
	cfg config.Config
}

// NewEngine returns an Engine configured from cfg.PDF.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// session owns a browser process, its allocator and its profile dir.
type session struct {
	profileDir    string
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	deadline      time.Time
	idleWindow    time.Duration

	mu       sync.Mutex
	released bool
}

func (e *Engine) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
	)
	if e.cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.PDF.ChromePath))
	}
	if e.cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// Acquire starts a fresh browser. The returned session must be released.
func (e *Engine) Acquire(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := createProfileDir(e.cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s := &session{
		profileDir:    dir,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		deadline:      time.Now().Add(e.cfg.RenderTimeout()),
		idleWindow:    e.cfg.NetworkIdle(),
	}

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so launch on browserCtx and cancel it out of band.
	timer := time.AfterFunc(e.cfg.RenderTimeout(), browserCancel)
	stop := context.AfterFunc(ctx, browserCancel)
	err = chromedp.Run(browserCtx)
	timer.Stop()
	stop()
	if err != nil {
		_ = s.Release()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	logging.Debug("Chrome session started", "profile_dir", dir)
	return s, nil
}

// runContext derives a context for one step, bounded by the session deadline
// and cancelled together with the caller's context.
func (s *session) runContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return nil, nil, domain.ErrSessionReleased
	}

	runCtx, cancel := context.WithDeadline(s.browserCtx, s.deadline)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}, nil
}

// Load replaces the blank page's document with html and waits until the
// network has been idle for the configured window.
func (s *session) Load(ctx context.Context, html string) error {
	runCtx, cancel, err := s.runContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	idle := newNetworkIdle(s.idleWindow)
	chromedp.ListenTarget(runCtx, idle.observe)

	return chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			if err := page.SetDocumentContent(frame.Frame.ID, html).Do(ctx); err != nil {
				return err
			}
			// The quiet window starts once the document exists.
			idle.restart()
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := waitForNetworkIdle(ctx, idle, idlePollInterval); err != nil {
				return fmt.Errorf("wait for network idle (%d requests pending): %w", idle.pending(), err)
			}
			return nil
		}),
	)
}

// ExportPDF prints the current document.
func (s *session) ExportPDF(ctx context.Context, opts domain.PrintOptions) ([]byte, error) {
	runCtx, cancel, err := s.runContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var pdfBuf []byte
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		pdfBuf, _, err = printParams(opts).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

func printParams(opts domain.PrintOptions) *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(opts.PrintBackground).
		WithPaperWidth(opts.PaperWidth).
		WithPaperHeight(opts.PaperHeight).
		WithMarginTop(opts.MarginTop).
		WithMarginRight(opts.MarginRight).
		WithMarginBottom(opts.MarginBottom).
		WithMarginLeft(opts.MarginLeft)
}

// Release kills the browser and removes its profile. Safe to call twice.
func (s *session) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	s.browserCancel()
	s.allocCancel()
	if err := os.RemoveAll(s.profileDir); err != nil {
		return fmt.Errorf("remove chrome profile: %w", err)
	}
	logging.Debug("Chrome session released", "profile_dir", s.profileDir)
	return nil
}
