package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/JustJay7/ecourts-capture/pkg/logger"
)

const stampLayout = "20060102_150405"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Printer renders the currently displayed page.
type Printer interface {
	PrintPDF() ([]byte, error)
}

// Fetcher downloads a linked document.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Attachment is one downloaded document linked from a case page.
type Attachment struct {
	URL  string
	Path string
	Data []byte
}

// Result holds every artifact produced for one case.
type Result struct {
	Main        []byte
	MainPath    string
	Attachments []Attachment
	Merged      []byte
	MergedPath  string
	// MergeErr is set when merging failed; Main remains the primary artifact.
	MergeErr error
}

// Capturer writes case artifacts under a download directory.
type Capturer struct {
	dir    string
	logger *logger.Logger
	now    func() time.Time
}

// NewCapturer creates a capturer writing into dir.
func NewCapturer(dir string, logger *logger.Logger) *Capturer {
	return &Capturer{dir: dir, logger: logger, now: time.Now}
}

// MainName is the whole-page capture filename for a case.
func MainName(serial string, at time.Time) string {
	return fmt.Sprintf("serial_%s_%s.pdf", safeSerial(serial), at.Format(stampLayout))
}

// MergedName is the merged document filename for a case.
func MergedName(serial string, at time.Time) string {
	return fmt.Sprintf("merged_case_%s_%s.pdf", safeSerial(serial), at.Format(stampLayout))
}

// AttachmentName is the filename of the n-th (one-based) attachment.
func AttachmentName(serial string, at time.Time, n int) string {
	return fmt.Sprintf("attachment_%s_%s_%d.pdf", safeSerial(serial), at.Format(stampLayout), n)
}

func safeSerial(serial string) string {
	s := unsafeName.ReplaceAllString(serial, "-")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// Capture prints the current page, downloads links and merges them behind
// the page capture. Only a failed page capture is returned as an error;
// attachment and merge failures are recorded on the result.
func (c *Capturer) Capture(ctx context.Context, p Printer, f Fetcher, serial string, links []string) (*Result, error) {
	at := c.now()

	main, err := p.PrintPDF()
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	if len(main) == 0 {
		return nil, fmt.Errorf("render page: empty document")
	}

	mainPath, err := c.write(MainName(serial, at), main)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Page captured", "serial", serial, "path", mainPath, "size", len(main))

	res := &Result{Main: main, MainPath: mainPath}
	res.Attachments = c.FetchAttachments(ctx, f, serial, at, links)

	docs := [][]byte{main}
	for _, a := range res.Attachments {
		docs = append(docs, a.Data)
	}

	merged, err := Merge(docs...)
	if err != nil {
		res.MergeErr = err
		c.logger.Warn("Merge failed, keeping page capture as primary", "serial", serial, "error", err)
		return res, nil
	}

	mergedPath, err := c.write(MergedName(serial, at), merged)
	if err != nil {
		res.MergeErr = err
		c.logger.Warn("Merged PDF not written", "serial", serial, "error", err)
		return res, nil
	}
	res.Merged, res.MergedPath = merged, mergedPath

	c.logger.Info("Merged PDF created", "serial", serial, "path", mergedPath, "documents", len(docs))
	return res, nil
}

// FetchAttachments downloads each link independently, in order. Failures are
// logged and skipped.
func (c *Capturer) FetchAttachments(ctx context.Context, f Fetcher, serial string, at time.Time, links []string) []Attachment {
	var out []Attachment
	for i, link := range links {
		if ctx.Err() != nil {
			c.logger.Warn("Attachment download interrupted", "serial", serial, "remaining", len(links)-i)
			break
		}

		data, err := f.Download(ctx, link)
		if err != nil {
			c.logger.Warn("Attachment download failed", "serial", serial, "url", link, "error", err)
			continue
		}

		path, err := c.write(AttachmentName(serial, at, len(out)+1), data)
		if err != nil {
			c.logger.Warn("Attachment not written", "serial", serial, "url", link, "error", err)
			continue
		}
		out = append(out, Attachment{URL: link, Path: path, Data: data})
	}
	return out
}

func (c *Capturer) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}
