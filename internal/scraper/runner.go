// Package scraper sequences a cause-list run on the court portal: date
// selection, CAPTCHA, result pages and per-case capture.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/browser"
	"github.com/JustJay7/ecourts-capture/internal/captcha"
	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/extractor"
	"github.com/JustJay7/ecourts-capture/internal/pdf"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const portalDateLayout = "02-01-2006"

var tracer = otel.Tracer("github.com/JustJay7/ecourts-capture/internal/scraper")

// Store is the persistence the run writes cases into.
type Store interface {
	SaveCapture(ctx context.Context, c *database.Capture) (uint, error)
	FindByCNR(ctx context.Context, cnr string) (*database.CaseRecord, error)
}

// Options select what a run searches for.
type Options struct {
	Date     time.Time
	Category Category
	// UpcomingOnly skips cases whose next hearing is not today or tomorrow.
	UpcomingOnly bool
	// Resume skips cases already fully captured for the same date.
	Resume bool
}

// Progress is a snapshot of a run in flight.
type Progress struct {
	State    State `json:"state"`
	Page     int   `json:"page"`
	Attempts int   `json:"captcha_attempts"`
	Saved    int   `json:"saved"`
	Skipped  int   `json:"skipped"`
	Failed   int   `json:"failed"`
}

// Report summarizes a finished run.
type Report struct {
	Date       string        `json:"date"`
	Category   Category      `json:"category"`
	State      State         `json:"state"`
	Pages      int           `json:"pages"`
	Attempts   int           `json:"captcha_attempts"`
	NoRecords  bool          `json:"no_records"`
	Cancelled  bool          `json:"cancelled"`
	Cases      []CaseOutcome `json:"cases"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	err error
}

// Count returns how many cases ended with status.
func (r *Report) Count(status CaseStatus) int {
	n := 0
	for _, c := range r.Cases {
		if c.Status == status {
			n++
		}
	}
	return n
}

// Runner drives one browser session through a run.
type Runner struct {
	cfg       *config.Config
	logger    *logger.Logger
	session   browser.Session
	solver    captcha.Solver
	store     Store
	capturer  *pdf.Capturer
	extractor *extractor.Extractor
	sel       Selectors
	now       func() time.Time

	// OnCaseSaved is called after each case is committed.
	OnCaseSaved func(*database.CaseRecord)

	mu       sync.Mutex
	progress Progress
}

// NewRunner wires a run over session. The session is used exclusively by
// this runner until Run returns.
func NewRunner(cfg *config.Config, log *logger.Logger, session browser.Session, solver captcha.Solver, store Store, capturer *pdf.Capturer) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   log,
		session:  session,
		solver:   solver,
		store:    store,
		capturer: capturer,
		now:      time.Now,
	}
	r.SetSelectors(DefaultSelectors)
	return r
}

// SetSelectors replaces the portal selectors.
func (r *Runner) SetSelectors(sel Selectors) {
	r.sel = sel
	r.extractor = extractor.New(nil, extractor.ListLayout{
		Table:       sel.ResultsTable,
		ViewControl: sel.ViewControl,
		Heading:     sel.Heading,
	})
}

// Progress returns the current run snapshot.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Runner) update(fn func(p *Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	r.mu.Unlock()
}

// run is the transient navigation state of one Run call.
type run struct {
	*Runner
	opts            Options
	date            string
	today, tomorrow string
	report          *Report

	page      int
	attempts  int
	rows      []extractor.ResultRow
	cursor    int
	opened    bool
	processed map[string]bool
}

// Run executes the navigation sequence until it stops cleanly, fails, or
// ctx is cancelled. Cancellation is honoured between steps, so a case in
// progress is either committed or discarded whole.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	loc := r.cfg.Location()
	if opts.Date.IsZero() {
		opts.Date = r.now().In(loc)
	}
	if opts.Category == "" {
		opts.Category = CategoryCivil
	}

	m := &run{
		Runner:    r,
		opts:      opts,
		date:      opts.Date.Format(database.DateLayout),
		processed: make(map[string]bool),
		report: &Report{
			Date:      opts.Date.Format(database.DateLayout),
			Category:  opts.Category,
			StartedAt: r.now(),
		},
	}
	m.today, m.tomorrow = database.UpcomingWindow(r.now(), loc)

	ctx, span := tracer.Start(ctx, "scraper.run", trace.WithAttributes(
		attribute.String("date", m.date),
		attribute.String("category", string(opts.Category)),
	))
	defer span.End()

	r.logger.Info("Run started", "date", m.date, "category", opts.Category, "upcoming_only", opts.UpcomingOnly, "resume", opts.Resume)

	state := AwaitingDateSelection
	for !state.Terminal() {
		if ctx.Err() != nil {
			m.report.Cancelled = true
			r.logger.Info("Run cancelled", "state", state, "page", m.page)
			state = Idle
			break
		}

		r.update(func(p *Progress) { p.State = state })
		next, err := m.step(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			m.report.err = err
			r.logger.Error("Run failed", "state", state, "error", err)
			next = Failed
		}
		if next != state {
			r.logger.Debug("State transition", "from", state, "to", next)
		}
		state = next
	}

	r.update(func(p *Progress) { p.State = state })
	m.report.State = state
	m.report.Pages = m.page
	m.report.Attempts = m.attempts
	m.report.FinishedAt = r.now()

	r.logger.Info("Run finished",
		"state", state,
		"pages", m.page,
		"saved", m.report.Count(CaseSaved),
		"skipped", m.report.Count(CaseSkipped),
		"failed", m.report.Count(CaseFailed))

	if state == Failed {
		m.report.Error = m.report.err.Error()
		span.RecordError(m.report.err)
		span.SetStatus(codes.Error, m.report.Error)
		return m.report, m.report.err
	}
	return m.report, nil
}

func (m *run) step(ctx context.Context, s State) (State, error) {
	switch s {
	case AwaitingDateSelection:
		return m.selectDate(ctx)
	case AwaitingCaptcha:
		return m.submitCaptcha(ctx)
	case ResultsListed:
		return m.listResults()
	case CaseOpen:
		return m.openCase(ctx)
	case CaptureDone:
		return m.returnToList(ctx)
	case NextPage:
		return m.nextPage(ctx)
	}
	return Failed, fmt.Errorf("no transition from state %s", s)
}

// retryOnce runs fn a second time when the first attempt fails.
func (m *run) retryOnce(ctx context.Context, step string, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil {
		return err
	}
	m.logger.Warn("Step failed, retrying once", "step", step, "error", err)
	return fn()
}

func (m *run) selectDate(ctx context.Context) (State, error) {
	err := m.retryOnce(ctx, "open search form", func() error {
		if err := m.session.Open(ctx, m.cfg.PortalURL); err != nil {
			return err
		}
		return m.session.WaitFor(m.sel.DatePicker, m.cfg.ElementTimeout)
	})
	if err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "date picker", err)
	}

	value := m.opts.Date.Format(portalDateLayout)
	if err := m.session.Fill(m.sel.DatePicker, value); err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "date picker", err)
	}
	m.logger.Info("Date selected", "date", value)
	return AwaitingCaptcha, nil
}

func (m *run) submitCaptcha(ctx context.Context) (State, error) {
	if m.attempts >= m.cfg.MaxCaptchaAttempts {
		return Failed, stepErr(ErrCaptchaRejected, "captcha", fmt.Errorf("gave up after %d attempts", m.attempts))
	}
	m.attempts++
	m.update(func(p *Progress) { p.Attempts = m.attempts })

	if m.attempts > 1 && m.session.Exists(m.sel.CaptchaRefresh) {
		if err := m.session.Click(m.sel.CaptchaRefresh); err != nil {
			m.logger.Warn("CAPTCHA refresh failed", "error", err)
		}
	}

	img, err := m.session.CaptchaImage(m.sel.CaptchaImage)
	if err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "captcha image", err)
	}

	m.logger.Info("Waiting for CAPTCHA answer", "attempt", m.attempts, "max", m.cfg.MaxCaptchaAttempts)
	text, err := m.solver.Solve(ctx, captcha.Challenge{Image: img, Attempt: m.attempts, IssuedAt: m.now()})
	if err != nil {
		if ctx.Err() != nil {
			return AwaitingCaptcha, ctx.Err()
		}
		m.logger.Warn("CAPTCHA not solved", "attempt", m.attempts, "error", err)
		return AwaitingCaptcha, nil
	}

	if err := m.session.Fill(m.sel.CaptchaInput, text); err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "captcha input", err)
	}
	if err := m.session.Click(m.sel.submitButton(m.opts.Category)); err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "submit search", err)
	}

	matched, err := m.session.WaitForAny(m.cfg.ElementTimeout, m.sel.ResultsTable, m.sel.ErrorBanner)
	switch {
	case err != nil:
		if m.session.Exists(m.sel.CaptchaInput) {
			m.logger.Warn("CAPTCHA rejected", "attempt", m.attempts, "error", stepErr(ErrCaptchaRejected, "captcha", err))
			return AwaitingCaptcha, nil
		}
		return Failed, stepErr(ErrNavigationTimeout, "results table", err)

	case matched == m.sel.ErrorBanner:
		banner, _ := m.session.Text(m.sel.ErrorBanner)
		if m.sel.NoRecords != nil && m.sel.NoRecords.MatchString(banner) {
			m.report.NoRecords = true
			m.logger.Info("No cases listed for date", "date", m.date, "banner", banner)
			return Idle, nil
		}
		m.logger.Warn("CAPTCHA rejected", "attempt", m.attempts, "banner", banner)
		return AwaitingCaptcha, nil
	}

	m.logger.Info("CAPTCHA accepted", "attempt", m.attempts)
	m.page = 1
	m.rows = nil
	m.update(func(p *Progress) { p.Page = m.page })
	return ResultsListed, nil
}

func (m *run) listResults() (State, error) {
	if m.rows == nil {
		html, err := m.session.HTML()
		if err != nil {
			return Failed, stepErr(ErrNavigationTimeout, "results table", err)
		}
		rows, err := m.extractor.ParseResults(html, m.cfg.CourtName)
		if err != nil {
			return Failed, stepErr(ErrExtractionFailed, "results table", err)
		}
		m.rows = append([]extractor.ResultRow{}, rows...)
		m.cursor = 0
		m.logger.Info("Results page parsed", "page", m.page, "rows", len(rows))
	}

	if m.cursor < len(m.rows) {
		return CaseOpen, nil
	}
	return NextPage, nil
}

func (m *run) openCase(ctx context.Context) (State, error) {
	row := m.rows[m.cursor]
	m.cursor++

	out := m.processRow(ctx, row)
	m.record(out)

	if m.opened {
		return CaptureDone, nil
	}
	return ResultsListed, nil
}

func (m *run) returnToList(ctx context.Context) (State, error) {
	m.opened = false

	if !m.session.Exists(m.sel.DetailMarker) && m.session.Exists(m.sel.ResultsTable) {
		return ResultsListed, nil
	}

	back := func() error {
		if m.session.Exists(m.sel.BackControl) {
			if err := m.session.Click(m.sel.BackControl); err == nil {
				return m.session.WaitFor(m.sel.ResultsTable, m.cfg.ElementTimeout)
			}
		}
		if err := m.session.Back(); err != nil {
			return err
		}
		return m.session.WaitFor(m.sel.ResultsTable, m.cfg.ElementTimeout)
	}

	if err := back(); err != nil {
		if ctx.Err() != nil {
			return CaptureDone, err
		}
		m.logger.Warn("Step failed, retrying once", "step", "return to results", "error", err)
		if err := m.session.WaitFor(m.sel.ResultsTable, m.cfg.ElementTimeout); err != nil {
			return Failed, stepErr(ErrNavigationTimeout, "results table", err)
		}
	}
	return ResultsListed, nil
}

func (m *run) nextPage(ctx context.Context) (State, error) {
	if m.page >= m.cfg.MaxPages {
		m.logger.Warn("Page limit reached", "pages", m.page)
		return Idle, nil
	}
	if !m.session.Exists(m.sel.NextPage) {
		m.logger.Info("No further result pages", "pages", m.page)
		return Idle, nil
	}

	if err := m.session.Click(m.sel.NextPage); err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "next page", err)
	}
	err := m.retryOnce(ctx, "next page", func() error {
		return m.session.WaitFor(m.sel.ResultsTable, m.cfg.ElementTimeout)
	})
	if err != nil {
		return Failed, stepErr(ErrNavigationTimeout, "results table", err)
	}

	m.page++
	m.rows = nil
	m.update(func(p *Progress) { p.Page = m.page })
	return ResultsListed, nil
}

func (m *run) record(out CaseOutcome) {
	m.report.Cases = append(m.report.Cases, out)
	m.update(func(p *Progress) {
		switch out.Status {
		case CaseSaved:
			p.Saved++
		case CaseFailed:
			p.Failed++
		default:
			p.Skipped++
		}
	})
}
