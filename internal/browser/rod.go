package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// A4 with the portal's own print margins, in inches.
const (
	paperWidth  = 8.27
	paperHeight = 11.69
	pageMargin  = 0.4
)

// RodSession is a Session backed by a Chromium page driven through go-rod.
type RodSession struct {
	cfg        *config.Config
	logger     *logger.Logger
	browser    *rod.Browser
	page       *rod.Page
	downloader *Downloader
}

// Launch starts a browser configured from cfg and opens a blank page.
func Launch(cfg *config.Config, log *logger.Logger) (*RodSession, error) {
	l := launcher.New().
		Headless(cfg.HeadlessMode).
		Set("user-agent", cfg.UserAgent).
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}
	if cfg.LogLevel == "debug" && !cfg.HeadlessMode {
		l = l.Devtools(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &RodSession{
		cfg:        cfg,
		logger:     log,
		browser:    b,
		page:       page,
		downloader: NewDownloader(cfg.UserAgent, cfg.DownloadRetries, cfg.DownloadBackoff, cfg.ScraperTimeout),
	}, nil
}

// Open navigates to url and waits for the document to load.
func (s *RodSession) Open(ctx context.Context, url string) error {
	s.page = s.page.Context(ctx)

	nav := s.page.Timeout(s.cfg.ScraperTimeout)
	defer nav.CancelTimeout()

	s.logger.Info("Navigating to portal", "url", url)
	if err := nav.Navigate(url); err != nil {
		return timeoutOr(fmt.Errorf("failed to navigate: %w", err))
	}
	if err := nav.WaitLoad(); err != nil {
		return timeoutOr(fmt.Errorf("page load: %w", err))
	}
	return nil
}

// WaitFor blocks until selector matches or timeout elapses.
func (s *RodSession) WaitFor(selector string, timeout time.Duration) error {
	p := s.page.Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		return timeoutOr(fmt.Errorf("wait for %q: %w", selector, err))
	}
	return nil
}

// WaitForAny races the selectors and reports which one appeared first.
func (s *RodSession) WaitForAny(timeout time.Duration, selectors ...string) (string, error) {
	p := s.page.Timeout(timeout)
	defer p.CancelTimeout()

	var matched string
	race := p.Race()
	for _, sel := range selectors {
		sel := sel
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", timeoutOr(fmt.Errorf("wait for any of %v: %w", selectors, err))
	}
	return matched, nil
}

// Exists reports whether selector currently matches, without waiting.
func (s *RodSession) Exists(selector string) bool {
	has, _, err := s.page.Has(selector)
	return err == nil && has
}

// Fill types value into the field, falling back to assigning the value for
// read-only inputs such as date pickers.
func (s *RodSession) Fill(selector, value string) error {
	el, done, err := s.element(selector)
	if err != nil {
		return err
	}
	defer done()

	if err := el.SelectAllText(); err == nil {
		if err := el.Input(value); err == nil {
			return nil
		}
	}

	_, err = el.Eval(`function(v) {
		this.value = v;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, value)
	if err != nil {
		return timeoutOr(fmt.Errorf("fill %q: %w", selector, err))
	}
	return nil
}

// Click clicks the first match of selector.
func (s *RodSession) Click(selector string) error {
	el, done, err := s.element(selector)
	if err != nil {
		return err
	}
	defer done()

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return timeoutOr(fmt.Errorf("click %q: %w", selector, err))
	}
	return nil
}

// ClickNth clicks the n-th match of selector.
func (s *RodSession) ClickNth(selector string, n int) error {
	p := s.page.Timeout(s.cfg.ElementTimeout)
	defer p.CancelTimeout()

	els, err := p.Elements(selector)
	if err != nil {
		return timeoutOr(fmt.Errorf("query %q: %w", selector, err))
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("%q has %d matches, want index %d: %w", selector, len(els), n, ErrNotFound)
	}

	el := els[n]
	if err := el.ScrollIntoView(); err != nil {
		s.logger.Debug("Scroll into view failed", "selector", selector, "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return timeoutOr(fmt.Errorf("click %q[%d]: %w", selector, n, err))
	}
	return nil
}

// Text returns the visible text of the first match of selector.
func (s *RodSession) Text(selector string) (string, error) {
	el, done, err := s.element(selector)
	if err != nil {
		return "", err
	}
	defer done()
	return el.Text()
}

// HTML returns the current document markup.
func (s *RodSession) HTML() (string, error) {
	return s.page.HTML()
}

// URL returns the current page address.
func (s *RodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Back returns to the previous page in history.
func (s *RodSession) Back() error {
	if err := s.page.NavigateBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return s.settle()
}

// CaptchaImage returns the challenge image bytes, decoding data URLs and
// falling back to an element screenshot.
func (s *RodSession) CaptchaImage(selector string) ([]byte, error) {
	el, done, err := s.element(selector)
	if err != nil {
		return nil, err
	}
	defer done()

	if src, err := el.Attribute("src"); err == nil && src != nil {
		if strings.HasPrefix(*src, "data:image") {
			if _, payload, ok := strings.Cut(*src, ","); ok {
				if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
					return data, nil
				}
			}
		}
		if data, err := el.Resource(); err == nil && len(data) > 0 {
			return data, nil
		}
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot CAPTCHA: %w", err)
	}
	return data, nil
}

// PrintPDF waits for the page to settle and prints it on A4 with
// backgrounds. A page that never settles is not printed.
func (s *RodSession) PrintPDF() ([]byte, error) {
	if err := s.settle(); err != nil {
		return nil, timeoutOr(fmt.Errorf("page did not settle before capture: %w", err))
	}

	p := s.page.Timeout(s.cfg.ScraperTimeout)
	defer p.CancelTimeout()

	width, height, margin := paperWidth, paperHeight, pageMargin
	r, err := p.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      &width,
		PaperHeight:     &height,
		MarginTop:       &margin,
		MarginBottom:    &margin,
		MarginLeft:      &margin,
		MarginRight:     &margin,
	})
	if err != nil {
		return nil, timeoutOr(fmt.Errorf("print to PDF: %w", err))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, timeoutOr(fmt.Errorf("read PDF stream: %w", err))
	}
	return data, nil
}

// Download fetches url with the page's cookies attached.
func (s *RodSession) Download(ctx context.Context, url string) ([]byte, error) {
	var cookies []*http.Cookie
	if nc, err := s.page.Cookies([]string{url}); err == nil {
		for _, c := range nc {
			cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return s.downloader.Fetch(ctx, url, cookies)
}

// Close shuts the page and the browser.
func (s *RodSession) Close() error {
	if s.page != nil {
		s.page.Close()
	}
	return s.browser.Close()
}

// element finds the first match of selector. The element stays bound to the
// lookup's ElementTimeout deadline until done is called.
func (s *RodSession) element(selector string) (*rod.Element, func(), error) {
	p := s.page.Timeout(s.cfg.ElementTimeout)
	el, err := p.Element(selector)
	if err != nil {
		p.CancelTimeout()
		return nil, nil, timeoutOr(fmt.Errorf("find %q: %w", selector, err))
	}
	return el, func() { p.CancelTimeout() }, nil
}

func (s *RodSession) settle() error {
	p := s.page.Timeout(s.cfg.ScraperTimeout)
	defer p.CancelTimeout()
	return p.WaitStable(time.Second)
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
