package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotPDF is returned when a download succeeds but the body is not a PDF.
var ErrNotPDF = errors.New("response is not a PDF document")

var pdfMagic = []byte("%PDF-")

// Downloader fetches attachment documents outside the page, reusing the
// page's session cookies.
type Downloader struct {
	client *resty.Client
}

// NewDownloader creates a downloader that retries transport errors and
// server errors with exponential backoff starting at backoff.
func NewDownloader(userAgent string, retries int, backoff, timeout time.Duration) *Downloader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff*8).
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Downloader{client: client}
}

// Fetch downloads url and checks that the body is a PDF.
func (d *Downloader) Fetch(ctx context.Context, url string, cookies []*http.Cookie) ([]byte, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetCookies(cookies).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode())
	}

	body := resp.Body()
	if !bytes.HasPrefix(bytes.TrimLeft(body, "\r\n\t "), pdfMagic) {
		return nil, fmt.Errorf("download %s: %w", url, ErrNotPDF)
	}
	return body, nil
}
