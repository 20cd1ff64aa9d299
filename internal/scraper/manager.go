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
	"github.com/JustJay7/ecourts-capture/internal/pdf"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
)

// SessionFactory opens a fresh browser session for a run.
type SessionFactory func(ctx context.Context) (browser.Session, error)

// RunStatus describes the current or most recent run.
type RunStatus struct {
	ID         string    `json:"id"`
	Running    bool      `json:"running"`
	Date       string    `json:"date"`
	Category   Category  `json:"category"`
	StartedAt  time.Time `json:"started_at"`
	Progress   Progress  `json:"progress"`
	NeedsInput bool      `json:"awaiting_captcha_answer"`
	Report     *Report   `json:"report,omitempty"`
}

type activeRun struct {
	id      string
	opts    Options
	runner  *Runner
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	report  *Report
}

// Manager owns at most one run at a time and exposes it to operators.
type Manager struct {
	cfg      *config.Config
	logger   *logger.Logger
	store    Store
	capturer *pdf.Capturer
	factory  SessionFactory
	operator *captcha.Operator
	solver   captcha.Solver

	// OnCaseSaved is passed to every runner the manager starts.
	OnCaseSaved func(*database.CaseRecord)

	mu      sync.Mutex
	current *activeRun
	seq     int
}

// NewManager creates a run manager. CAPTCHAs are answered through the
// returned manager's Operator unless solver is non-nil.
func NewManager(cfg *config.Config, log *logger.Logger, store Store, factory SessionFactory, solver captcha.Solver) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   log,
		store:    store,
		capturer: pdf.NewCapturer(cfg.DownloadDir, log),
		factory:  factory,
		operator: captcha.NewOperator(),
		solver:   solver,
	}
	if m.solver == nil {
		m.solver = m.operator
	}
	return m
}

// Operator is the CAPTCHA channel shared with the operator API.
func (m *Manager) Operator() *captcha.Operator {
	return m.operator
}

// Start launches a run in the background.
func (m *Manager) Start(opts Options) (RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.report == nil {
		return RunStatus{}, ErrRunActive
	}

	if opts.Date.IsZero() {
		opts.Date = time.Now().In(m.cfg.Location())
	}
	if opts.Category == "" {
		opts.Category = CategoryCivil
	}

	m.seq++
	ctx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		id:      fmt.Sprintf("run-%d-%d", time.Now().Unix(), m.seq),
		opts:    opts,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	m.current = ar

	go m.execute(ctx, ar)

	return m.statusLocked(), nil
}

func (m *Manager) execute(ctx context.Context, ar *activeRun) {
	defer close(ar.done)
	defer ar.cancel()

	log := m.logger.With("run", ar.id)
	report, err := func() (*Report, error) {
		session, err := m.factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("open browser session: %w", err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				log.Warn("Browser session close failed", "error", err)
			}
		}()

		runner := NewRunner(m.cfg, log, session, m.solver, m.store, m.capturer)
		runner.OnCaseSaved = m.OnCaseSaved

		m.mu.Lock()
		ar.runner = runner
		m.mu.Unlock()

		return runner.Run(ctx, ar.opts)
	}()

	if report == nil {
		report = &Report{State: Failed, StartedAt: ar.started, FinishedAt: time.Now()}
	}
	if err != nil {
		report.Error = err.Error()
		log.Error("Run ended with error", "error", err)
	}

	m.mu.Lock()
	ar.report = report
	m.mu.Unlock()
}

// Cancel stops the active run between cases.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.report != nil {
		return ErrNoActiveRun
	}
	m.logger.Info("Run cancellation requested", "run", m.current.id)
	m.current.cancel()
	return nil
}

// Wait blocks until the active run finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context) (RunStatus, error) {
	m.mu.Lock()
	ar := m.current
	m.mu.Unlock()

	if ar == nil {
		return RunStatus{}, ErrNoActiveRun
	}
	select {
	case <-ar.done:
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	}
	return m.Status(), nil
}

// Status reports the active run, or the last finished one.
func (m *Manager) Status() RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() RunStatus {
	ar := m.current
	if ar == nil {
		return RunStatus{}
	}

	st := RunStatus{
		ID:        ar.id,
		Running:   ar.report == nil,
		Date:      ar.opts.Date.Format(database.DateLayout),
		Category:  ar.opts.Category,
		StartedAt: ar.started,
		Report:    ar.report,
	}
	if ar.runner != nil {
		st.Progress = ar.runner.Progress()
	}
	if ar.report != nil {
		st.Progress.State = ar.report.State
	}
	_, st.NeedsInput = m.operator.Pending()
	return st
}
