package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/browser"
	"github.com/JustJay7/ecourts-capture/internal/captcha"
	"github.com/JustJay7/ecourts-capture/internal/testutil"
)

const portalBase = "https://portal.test"

// fakeCase is one row of the fake cause list and its detail page.
type fakeCase struct {
	Serial      string
	CNR         string
	RowNext     string
	DetailNext  string
	NoView      bool
	Attachments []fakeAttachment
	PrintErr    error
	// OpenFailures is how many view clicks do nothing before one works.
	OpenFailures int
}

type fakeAttachment struct {
	Path string
	Data []byte
}

// fakePortal is a scripted browser.Session that renders the cause-list
// flow from in-memory pages.
type fakePortal struct {
	sel          Selectors
	court        string
	pages        [][]*fakeCase
	answer       string
	openFailures int

	view    string
	page    int
	current *fakeCase
	banner  string
	typed   string

	filledDate string
	submitted  []string
	refreshes  int
	images     int
	opens      int
	backs      int
	closed     bool
}

var _ browser.Session = (*fakePortal)(nil)

func newFakePortal(answer string, pages ...[]*fakeCase) *fakePortal {
	return &fakePortal{
		sel:    DefaultSelectors,
		court:  "Tis Hazari Courts",
		pages:  pages,
		answer: answer,
	}
}

func (p *fakePortal) has(sel string) bool {
	switch sel {
	case p.sel.DatePicker, p.sel.CaptchaImage, p.sel.CaptchaInput, p.sel.CaptchaRefresh,
		p.sel.CivilButton, p.sel.CriminalButton:
		return p.view == "form"
	case p.sel.ErrorBanner:
		return p.view == "form" && p.banner != ""
	case p.sel.ResultsTable:
		return p.view == "results"
	case p.sel.DetailMarker:
		return p.view == "detail"
	case p.sel.NextPage:
		return p.view == "results" && p.page < len(p.pages)-1
	}
	return false
}

func (p *fakePortal) Open(_ context.Context, url string) error {
	p.opens++
	if p.openFailures > 0 {
		p.openFailures--
		return fmt.Errorf("navigate %s: %w", url, browser.ErrTimeout)
	}
	p.view = "form"
	p.banner = ""
	return nil
}

func (p *fakePortal) WaitFor(selector string, _ time.Duration) error {
	if p.has(selector) {
		return nil
	}
	return fmt.Errorf("wait for %q: %w", selector, browser.ErrTimeout)
}

func (p *fakePortal) WaitForAny(_ time.Duration, selectors ...string) (string, error) {
	for _, s := range selectors {
		if p.has(s) {
			return s, nil
		}
	}
	return "", browser.ErrTimeout
}

func (p *fakePortal) Exists(selector string) bool {
	return p.has(selector)
}

func (p *fakePortal) Fill(selector, value string) error {
	if !p.has(selector) {
		return browser.ErrNotFound
	}
	switch selector {
	case p.sel.DatePicker:
		p.filledDate = value
	case p.sel.CaptchaInput:
		p.typed = value
	}
	return nil
}

func (p *fakePortal) Click(selector string) error {
	if !p.has(selector) {
		return browser.ErrNotFound
	}
	switch selector {
	case p.sel.CaptchaRefresh:
		p.refreshes++
	case p.sel.CivilButton, p.sel.CriminalButton:
		p.submitted = append(p.submitted, p.typed)
		switch {
		case p.typed != p.answer:
			p.banner = "Invalid Captcha"
		case len(p.pages) == 0:
			p.banner = "No Records Found"
		default:
			p.view, p.page, p.banner = "results", 0, ""
		}
	case p.sel.NextPage:
		p.page++
	}
	return nil
}

func (p *fakePortal) ClickNth(_ string, n int) error {
	if p.view != "results" {
		return browser.ErrNotFound
	}
	i := 0
	for _, c := range p.pages[p.page] {
		if c.NoView {
			continue
		}
		if i == n {
			if c.OpenFailures > 0 {
				c.OpenFailures--
				return nil
			}
			p.view, p.current = "detail", c
			return nil
		}
		i++
	}
	return browser.ErrNotFound
}

func (p *fakePortal) Text(selector string) (string, error) {
	if selector == p.sel.ErrorBanner && p.has(selector) {
		return p.banner, nil
	}
	return "", browser.ErrNotFound
}

func (p *fakePortal) HTML() (string, error) {
	switch p.view {
	case "results":
		return p.renderResults(), nil
	case "detail":
		return p.renderDetail(), nil
	}
	return "<html><body><form></form></body></html>", nil
}

func (p *fakePortal) renderResults() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h3>%s</h3><table id=\"dispTable\">", p.court)
	b.WriteString("<tr><th>Sr No</th><th>Case</th><th>Next</th><th></th></tr>")
	for _, c := range p.pages[p.page] {
		view := `<a href="#" onclick="viewHistory()">View</a>`
		if c.NoView {
			view = ""
		}
		next := ""
		if c.RowNext != "" {
			next = "Next Hearing Date: " + c.RowNext
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>CS DJ %s/2024</td><td>%s</td><td>%s</td></tr>", c.Serial, c.Serial, next, view)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func (p *fakePortal) renderDetail() string {
	c := p.current
	var b strings.Builder
	b.WriteString(`<html><body><table class="case_details_table">`)
	b.WriteString("<tr><td>Case Type</td><td>CS DJ ADJ</td></tr>")
	b.WriteString("<tr><td>Filing Number</td><td>100/2024</td></tr>")
	b.WriteString("<tr><td>Registration Number</td><td>55/2024</td></tr>")
	if c.CNR != "" {
		fmt.Fprintf(&b, "<tr><td>CNR Number</td><td>%s (Note the CNR number for future reference)</td></tr>", c.CNR)
	}
	b.WriteString("<tr><td>Court Number and Judge</td><td>1-District Judge</td></tr>")
	if c.DetailNext != "" {
		fmt.Fprintf(&b, "<tr><td>Next Hearing Date</td><td>%s</td></tr>", c.DetailNext)
	}
	b.WriteString("</table>")
	for i, a := range c.Attachments {
		fmt.Fprintf(&b, `<a href="%s">Order %d</a>`, a.Path, i+1)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func (p *fakePortal) URL() string {
	return portalBase + "/ecourtindia_v6/?p=cause_list/index"
}

func (p *fakePortal) Back() error {
	p.backs++
	if p.view == "detail" {
		p.view = "results"
	}
	return nil
}

func (p *fakePortal) CaptchaImage(selector string) ([]byte, error) {
	if !p.has(selector) {
		return nil, browser.ErrNotFound
	}
	p.images++
	return []byte(fmt.Sprintf("captcha-%d", p.images)), nil
}

// PrintPDF renders a one-page document whose width encodes the serial.
func (p *fakePortal) PrintPDF() ([]byte, error) {
	if p.view != "detail" {
		return nil, errors.New("no case open")
	}
	if p.current.PrintErr != nil {
		return nil, p.current.PrintErr
	}
	return testutil.PDF(serialWidth(p.current.Serial)), nil
}

func serialWidth(serial string) float64 {
	n, err := strconv.Atoi(serial)
	if err != nil {
		return 50
	}
	return float64(100 * n)
}

func (p *fakePortal) Download(_ context.Context, url string) ([]byte, error) {
	if p.current != nil {
		for _, a := range p.current.Attachments {
			if portalBase+a.Path == url {
				return a.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("download %s: unexpected status 404", url)
}

func (p *fakePortal) Close() error {
	p.closed = true
	return nil
}

// scriptedSolver answers challenges from a fixed list, repeating the last.
type scriptedSolver struct {
	answers    []string
	challenges []captcha.Challenge
}

func (s *scriptedSolver) Solve(_ context.Context, ch captcha.Challenge) (string, error) {
	s.challenges = append(s.challenges, ch)
	i := len(s.challenges) - 1
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	return s.answers[i], nil
}
