// Package browser drives the court portal through a real browser page.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an awaited element does not appear in time.
var ErrTimeout = errors.New("timed out waiting for element")

// ErrNotFound is returned when a selector matches nothing, or fewer elements
// than the requested index.
var ErrNotFound = errors.New("element not found")

// Session is one live page on the portal. Implementations are not safe for
// concurrent use; a run owns its session exclusively.
type Session interface {
	// Open navigates to url and binds ctx to every later page operation.
	Open(ctx context.Context, url string) error
	WaitFor(selector string, timeout time.Duration) error
	// WaitForAny returns the first selector that matched.
	WaitForAny(timeout time.Duration, selectors ...string) (string, error)
	Exists(selector string) bool
	Fill(selector, value string) error
	Click(selector string) error
	// ClickNth clicks the n-th (zero-based) match of selector in document order.
	ClickNth(selector string, n int) error
	Text(selector string) (string, error)
	HTML() (string, error)
	URL() string
	Back() error
	CaptchaImage(selector string) ([]byte, error)
	// PrintPDF renders the current page, including off-screen content, once
	// it has settled.
	PrintPDF() ([]byte, error)
	// Download fetches url with the page's cookies.
	Download(ctx context.Context, url string) ([]byte, error)
	Close() error
}
