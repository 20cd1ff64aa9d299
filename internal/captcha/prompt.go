package captcha

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Prompt saves each challenge image to disk and reads the answer from a
// terminal. Input is read by a single goroutine that lives as long as the
// reader, so a cancelled Solve leaves nothing blocked behind it. A line typed
// after a cancelled prompt answers the next one.
type Prompt struct {
	dir string
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan promptLine
}

type promptLine struct {
	text string
	err  error
}

// NewPrompt creates a terminal solver writing images into dir.
func NewPrompt(dir string, in io.Reader, out io.Writer) *Prompt {
	return &Prompt{dir: dir, in: in, out: out, lines: make(chan promptLine)}
}

func (p *Prompt) readLines() {
	defer close(p.lines)
	r := bufio.NewReader(p.in)
	for {
		text, err := r.ReadString('\n')
		p.lines <- promptLine{text, err}
		if err != nil {
			return
		}
	}
}

// Solve writes the image and waits for one line of input.
func (p *Prompt) Solve(ctx context.Context, ch Challenge) (string, error) {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create captcha directory: %w", err)
	}

	name := fmt.Sprintf("captcha_%d_%d.png", ch.IssuedAt.Unix(), ch.Attempt)
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, ch.Image, 0644); err != nil {
		return "", fmt.Errorf("failed to save captcha image: %w", err)
	}
	defer os.Remove(path)

	fmt.Fprintf(p.out, "CAPTCHA attempt %d saved to %s\nEnter CAPTCHA: ", ch.Attempt, path)
	p.once.Do(func() { go p.readLines() })

	select {
	case l, ok := <-p.lines:
		if !ok {
			return "", fmt.Errorf("read captcha answer: %w", io.EOF)
		}
		text := strings.TrimSpace(l.text)
		if text == "" {
			if l.err != nil {
				return "", fmt.Errorf("read captcha answer: %w", l.err)
			}
			return "", ErrEmptyAnswer
		}
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
