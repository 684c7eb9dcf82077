package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/listing-harvester/internal/pagereader"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

// Browser owns one playwright driver and one Chromium process. Every Open
// creates a separate BrowserContext, so sessions never share cookies or DOM.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ar-KW,ar;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Kuwait",
		Locale:         "ar-KW",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Open creates a fresh browsing context with a single page in it.
func (b *Browser) Open(ctx context.Context) (pagereader.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		return nil, herrors.NewTransient("open browser context", "", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, herrors.NewTransient("open page", "", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &browserPage{ctx: bctx, page: page, logger: b.logger}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

type browserPage struct {
	ctx    playwright.BrowserContext
	page   playwright.Page
	url    string
	logger *slog.Logger
}

func (p *browserPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	resp, err := p.page.Goto(url, opts)
	if err != nil {
		return herrors.NewTransient("navigate", url, err)
	}
	if resp != nil && resp.Status() >= 500 {
		return herrors.NewTransient("navigate", url, fmt.Errorf("unexpected status code: %d", resp.Status()))
	}

	p.url = url
	p.logger.Debug("navigated", "url", url)
	return nil
}

func (p *browserPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateAttached,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	if err := p.page.Locator(selector).First().WaitFor(opts); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return herrors.NewContentMissing("wait for "+selector, p.url, err)
		}
		return herrors.NewTransient("wait for "+selector, p.url, err)
	}
	return nil
}

func (p *browserPage) QueryAll(selector string) ([]pagereader.Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapHandles(handles), nil
}

// Close discards the whole browsing context, not only the page.
func (p *browserPage) Close() error {
	if err := p.page.Close(); err != nil {
		p.logger.Debug("failed to close page", "error", err)
	}
	return p.ctx.Close()
}

type element struct {
	handle playwright.ElementHandle
}

func wrapHandles(handles []playwright.ElementHandle) []pagereader.Element {
	els := make([]pagereader.Element, 0, len(handles))
	for _, h := range handles {
		els = append(els, &element{handle: h})
	}
	return els
}

func (e *element) QueryAll(selector string) ([]pagereader.Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapHandles(handles), nil
}

func (e *element) Attribute(name string) (string, error) {
	v, err := e.handle.GetAttribute(name)
	if err != nil {
		return "", err
	}
	// playwright returns "" for a missing attribute.
	if v == "" {
		return "", pagereader.ErrNotFound
	}
	return v, nil
}

func (e *element) InnerText() (string, error) {
	return e.handle.InnerText()
}

func (e *element) InnerHTML() (string, error) {
	return e.handle.InnerHTML()
}
