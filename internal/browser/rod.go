package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/brandscope/brandscope-api/internal/models"
)

const (
	viewportWidth  = 1280
	viewportHeight = 720

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// extractJS strips non-content subtrees and returns the page title plus the
// visible text of the body.
const extractJS = `() => {
	for (const sel of ['script', 'style', 'nav', 'footer', 'header']) {
		document.querySelectorAll(sel).forEach(el => el.remove());
	}
	return {
		title: document.title || '',
		text: document.body ? document.body.innerText : '',
	};
}`

// rodFactory launches headless Chromium workers through go-rod.
type rodFactory struct{}

// NewRodFactory returns the default worker factory.
func NewRodFactory() Factory {
	return rodFactory{}
}

func (rodFactory) NewWorker() (Worker, error) {
	l := launcher.New().
		Headless(true).
		Set(flags.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to chromium: %w", err)
	}

	return &rodWorker{browser: b, launcher: l}, nil
}

// rodWorker is one long-lived Chromium process.
type rodWorker struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (w *rodWorker) NewContext() (Context, error) {
	incognito, err := w.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: userAgent}).Call(page); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}

	return &rodContext{page: page}, nil
}

func (w *rodWorker) Close() error {
	err := w.browser.Close()
	w.launcher.Cleanup()
	return err
}

// rodContext is one isolated page session.
type rodContext struct {
	page *rod.Page
}

func (c *rodContext) Load(ctx context.Context, url string, timeout time.Duration) (*models.Page, error) {
	page := c.page.Context(ctx).Timeout(timeout)

	wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	wait()

	res, err := page.Eval(extractJS)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content from %s: %w", url, err)
	}

	return &models.Page{
		URL:       url,
		Title:     res.Value.Get("title").Str(),
		Text:      res.Value.Get("text").Str(),
		ScrapedAt: time.Now().UTC(),
	}, nil
}

func (c *rodContext) Close() error {
	return c.page.Close()
}
