package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/xerrors"

	"snapshot-render/internal/bitmap"
	"snapshot-render/internal/codec"
)

type PlaywrightConfig struct {
	ViewportWidth  int
	ViewportHeight int

	// FullPage captures the whole scrollable page instead of the viewport,
	// which sizes the bitmap to fit the content.
	FullPage bool

	Timeout time.Duration
	Delay   time.Duration

	Headless                  bool
	ChromeDevtoolsProtocolURL string
	UserAgent                 string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		FullPage:       false,
		Timeout:        30 * time.Second,
		Delay:          0,
		Headless:       true,
	}
}

type playwrightCapturer struct {
	config PlaywrightConfig
}

func NewPlaywrightCapturer(ctx context.Context, p PlaywrightConfig) (Capturer, error) {
	return &playwrightCapturer{
		config: p,
	}, nil
}

func (c *playwrightCapturer) viewport(proposedSize *Size) (int, int) {
	if proposedSize == nil || proposedSize.Width <= 0 || proposedSize.Height <= 0 {
		return c.config.ViewportWidth, c.config.ViewportHeight
	}
	return int(math.Ceil(proposedSize.Width)), int(math.Ceil(proposedSize.Height))
}

func (c *playwrightCapturer) Capture(ctx context.Context, view View, proposedSize *Size, scale float64, captureOptions CaptureOptions) (*bitmap.Bitmap, error) {
	if scale <= 0 {
		scale = 1
	}

	p, err := playwright.Run()
	if err != nil {
		return nil, xerrors.Errorf("failed to start playwright: %w", err)
	}
	defer p.Stop()

	var browser playwright.Browser

	if c.config.ChromeDevtoolsProtocolURL == "" {
		browser, err = p.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(c.config.Headless),
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to launch browser: %w", err)
		}
		defer browser.Close()
	} else {
		browser, err = p.Chromium.ConnectOverCDP(c.config.ChromeDevtoolsProtocolURL)
		if err != nil {
			return nil, xerrors.Errorf("failed to connect to browser via CDP at %s: %w", c.config.ChromeDevtoolsProtocolURL, err)
		}
	}

	width, height := c.viewport(proposedSize)
	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  width,
			Height: height,
		},
		DeviceScaleFactor: playwright.Float(scale),
	}
	if c.config.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(c.config.UserAgent)
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return nil, xerrors.Errorf("failed to create browser context: %w", err)
	}
	defer browserContext.Close()

	page, err := browserContext.NewPage()
	if err != nil {
		return nil, xerrors.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			page.Close()
		case <-done:
		}
	}()
	defer close(done)

	if len(captureOptions.Headers) > 0 {
		if err := page.SetExtraHTTPHeaders(captureOptions.Headers); err != nil {
			return nil, xerrors.Errorf("failed to set HTTP headers: %w", err)
		}
	}

	timeout := playwright.Float(float64(c.config.Timeout.Milliseconds()))
	switch {
	case view.HTML != "":
		if err := page.SetContent(view.HTML, playwright.PageSetContentOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   timeout,
		}); err != nil {
			return nil, xerrors.Errorf("failed to set content of %s: %w", view.Name, err)
		}
	case view.URL != "":
		if _, err := page.Goto(view.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   timeout,
		}); err != nil {
			return nil, xerrors.Errorf("failed to navigate to %s: %w", view.URL, err)
		}
	default:
		return bitmap.Empty(scale), nil
	}

	if c.config.Delay > 0 {
		select {
		case <-time.After(c.config.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(captureOptions.MaskSelectors) > 0 {
		if err := mask(page, captureOptions.MaskSelectors); err != nil {
			return nil, err
		}
	}

	screenshotBytes, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage:   playwright.Bool(c.config.FullPage),
		Type:       playwright.ScreenshotTypePng,
		Animations: playwright.ScreenshotAnimationsDisabled,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to take screenshot: %w", err)
	}
	if len(screenshotBytes) == 0 {
		return bitmap.Empty(scale), nil
	}

	b, err := codec.PNG.Decode(screenshotBytes, scale)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode screenshot: %w", err)
	}
	return b, nil
}

func mask(page playwright.Page, selectors []string) error {
	unique := make([]byte, 8)
	if _, err := rand.Read(unique); err != nil {
		return xerrors.Errorf("failed to generate unique identifier: %w", err)
	}
	maskClassName := fmt.Sprintf("mask-%s", hex.EncodeToString(unique))

	maskCSS := fmt.Sprintf(`
.%s {
  position: relative !important;
}
.%s::after {
  content: "" !important;
  position: absolute !important;
  top: 0 !important;
  left: 0 !important;
  right: 0 !important;
  bottom: 0 !important;
  background-color: black !important;
  z-index: 2147483646 !important;
  pointer-events: none !important;
}
`, maskClassName, maskClassName)

	script := fmt.Sprintf(`(selectors) => {
			const style = document.createElement('style');
			style.textContent = %q;
			document.head.appendChild(style);

			selectors.forEach(selector => {
				const elements = document.querySelectorAll(selector);
				elements.forEach(element => {
					const computedStyle = window.getComputedStyle(element);
					if (computedStyle.position === 'static') {
						element.style.position = 'relative';
					}
					element.classList.add(%q);
				});
			});
		}`, maskCSS, maskClassName)

	if _, err := page.Evaluate(script, selectors); err != nil {
		return xerrors.Errorf("failed to mask selectors: %w", err)
	}
	return nil
}
