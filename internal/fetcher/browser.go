package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// BrowserFetcher implements Fetcher using a headless Chromium via Rod.
// It is used when the listing site starts rendering cards client-side.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.Config
	logger   *slog.Logger
	pagePool chan *rod.Page
	slots    chan struct{}
	agents   *UserAgents
}

// NewBrowserFetcher launches a browser and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	maxPages := cfg.Fetcher.Browser.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	bf := &BrowserFetcher{
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		pagePool: make(chan *rod.Page, maxPages),
		slots:    make(chan struct{}, maxPages),
		agents:   NewUserAgents(cfg.Engine.UserAgents),
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready",
		"max_pages", maxPages,
		"stealth", cfg.Fetcher.Browser.Stealth,
	)
	return bf, nil
}

func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("lang", bf.cfg.Engine.AcceptLanguage)

	if bf.cfg.Fetcher.Browser.Bin != "" {
		l = l.Bin(bf.cfg.Fetcher.Browser.Bin)
	}

	// Chromium takes a single proxy per process.
	if bf.cfg.Proxy.Enabled && len(bf.cfg.Proxy.URLs) > 0 {
		pm := NewProxyManager(&bf.cfg.Proxy, bf.logger)
		if proxyURL := pm.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	return l.Launch()
}

// userAgent picks the request's own User-Agent header when set, otherwise
// the next configured agent.
func (bf *BrowserFetcher) userAgent(req *types.Request) *proto.NetworkSetUserAgentOverride {
	ua := req.Headers.Get("User-Agent")
	if ua == "" {
		ua = bf.agents.Next()
	}
	return &proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: bf.cfg.Engine.AcceptLanguage,
	}
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	select {
	case bf.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &types.FetchError{URL: req.URLString(), Err: ctx.Err()}
	}
	defer func() { <-bf.slots }()

	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: fmt.Errorf("open page: %w", err)}
	}
	defer bf.putPage(page)

	if err := page.SetUserAgent(bf.userAgent(req)); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	headers := []string{"Accept-Language", bf.cfg.Engine.AcceptLanguage}
	for k, vals := range req.Headers {
		if k == "User-Agent" {
			continue
		}
		for _, v := range vals {
			headers = append(headers, k, v)
		}
	}
	cleanup, err := page.SetExtraHeaders(headers)
	if err == nil {
		defer cleanup()
	}

	timeout := bf.cfg.Engine.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	p := page.Context(ctx).Timeout(timeout)

	if err := p.Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	if wait := bf.cfg.Fetcher.Browser.WaitStable; wait > 0 {
		if err := p.WaitStable(wait); err != nil {
			bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	if html == "" {
		return nil, &types.FetchError{URL: req.URLString(), Err: types.ErrEmptyResponse}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod does not expose the document status; a rendered page counts as 200.
	resp := types.NewBrowserResponse(req, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}
	if bf.cfg.Fetcher.Browser.Stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
