package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/sirupsen/logrus"
)

// Launcher starts a browser and returns its page and a release func
type Launcher interface {
	Launch(ctx context.Context) (Page, func(), error)
}

// ErrNoBrowserBinary is returned when every lookup step failed
var ErrNoBrowserBinary = errors.New("no browser binary found")

var (
	binaryNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
	binaryPaths = []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/local/bin/chromium",
		"/opt/google/chrome/chrome",
		"/headless-shell/headless-shell",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
)

// hideWebdriver masks the most common automation fingerprint
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// BinaryResolver finds the browser executable: configured path, then PATH,
// then well-known install locations, then a managed download.
type BinaryResolver struct {
	LookPath func(string) (string, error)
	Exists   func(string) bool
	Download func() (string, error)
}

// DefaultBinaryResolver uses the OS and rod's managed browser download
func DefaultBinaryResolver() BinaryResolver {
	return BinaryResolver{
		LookPath: exec.LookPath,
		Exists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
		Download: func() (string, error) {
			return launcher.NewBrowser().Get()
		},
	}
}

// Resolve returns the first browser binary found
func (r BinaryResolver) Resolve(cfg config.BrowserConfig) (string, error) {
	if cfg.Binary != "" {
		if r.Exists(cfg.Binary) {
			return cfg.Binary, nil
		}
		return "", fmt.Errorf("%w: configured binary %s does not exist", ErrNoBrowserBinary, cfg.Binary)
	}

	for _, name := range binaryNames {
		if path, err := r.LookPath(name); err == nil {
			return path, nil
		}
	}

	for _, path := range binaryPaths {
		if r.Exists(path) {
			return path, nil
		}
	}

	if cfg.AllowDownload && r.Download != nil {
		path, err := r.Download()
		if err != nil {
			return "", fmt.Errorf("%w: download failed: %v", ErrNoBrowserBinary, err)
		}
		return path, nil
	}

	return "", ErrNoBrowserBinary
}

// ChromeLauncher launches a local Chrome through chromedp
type ChromeLauncher struct {
	cfg      config.BrowserConfig
	resolver BinaryResolver
	logger   *logrus.Logger
}

// NewChromeLauncher creates a launcher for cfg
func NewChromeLauncher(cfg config.BrowserConfig, logger *logrus.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, resolver: DefaultBinaryResolver(), logger: logger}
}

// AllocatorOptions returns the Chrome flags for cfg and binary
func AllocatorOptions(cfg config.BrowserConfig, binary string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(binary),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	return opts
}

// Launch starts Chrome, installs the anti-automation script and checks the tab responds
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, func(), error) {
	binary, err := l.resolver.Resolve(l.cfg)
	if err != nil {
		return nil, nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(l.cfg, binary)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Debugf))
	release := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run allocates the browser; it must not carry a timeout, but
	// a caller giving up still tears the half-started browser down.
	stopWatch := context.AfterFunc(ctx, release)
	if err := chromedp.Run(tabCtx); err != nil {
		stopWatch()
		release()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if !stopWatch() {
		return nil, nil, fmt.Errorf("failed to start browser: %w", ctx.Err())
	}

	script := hideWebdriver
	if l.cfg.Stealth {
		script = stealth.JS
	}

	p := NewChromePage(tabCtx, l.cfg.PageLoadTimeout)
	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err = p.run(checkCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("browser health check failed: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"binary":   binary,
		"headless": l.cfg.Headless,
		"stealth":  l.cfg.Stealth,
	}).Info("Browser started")

	return p, release, nil
}
