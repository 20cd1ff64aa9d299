package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/extractor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CaseStatus is how processing of one result row ended.
type CaseStatus string

const (
	CaseSaved    CaseStatus = "saved"
	CaseSkipped  CaseStatus = "skipped"
	CaseFiltered CaseStatus = "filtered"
	CaseFailed   CaseStatus = "failed"
)

var (
	errNoViewControl = errors.New("row has no view control")
	errDuplicate     = errors.New("case already processed in this run")
	errAlreadyDone   = errors.New("case already captured for this date")
	errNotUpcoming   = errors.New("next hearing is not today or tomorrow")
	errDiscarded     = errors.New("run cancelled before the case was saved")
)

// CaseOutcome records what happened to one result row.
type CaseOutcome struct {
	Page     int        `json:"page"`
	Serial   string     `json:"serial"`
	CNR      string     `json:"cnr,omitempty"`
	CaseID   uint       `json:"case_id,omitempty"`
	Status   CaseStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`

	err error
}

// Err returns the failure behind a skipped or failed outcome.
func (o CaseOutcome) Err() error {
	return o.err
}

func (o *CaseOutcome) end(status CaseStatus, err error) {
	o.Status = status
	o.err = err
	if err != nil {
		o.Error = err.Error()
	}
}

func (o *CaseOutcome) warn(err error) {
	o.Warnings = append(o.Warnings, err.Error())
}

// processRow opens one result row, extracts and captures the case and
// commits it. Every failure here is contained to the row.
func (m *run) processRow(ctx context.Context, row extractor.ResultRow) CaseOutcome {
	out := CaseOutcome{Page: m.page, Serial: row.Serial}
	log := m.logger.With("page", m.page, "serial", row.Serial)

	ctx, span := tracer.Start(ctx, "scraper.case", trace.WithAttributes(
		attribute.Int("page", m.page),
		attribute.String("serial", row.Serial),
	))
	defer func() {
		span.SetAttributes(attribute.String("status", string(out.Status)))
		if out.Status == CaseFailed {
			span.SetStatus(codes.Error, out.Error)
		}
		span.End()
	}()

	if row.ViewIndex < 0 {
		log.Warn("Case skipped", "error", errNoViewControl)
		out.end(CaseSkipped, errNoViewControl)
		return out
	}
	if m.opts.UpcomingOnly && row.NextHearing != "" && !m.upcoming(row.NextHearing) {
		log.Debug("Case filtered", "next_hearing", row.NextHearing)
		out.end(CaseFiltered, errNotUpcoming)
		return out
	}

	err := m.retryOnce(ctx, "open case", func() error {
		if err := m.session.ClickNth(m.extractor.ViewSelector(), row.ViewIndex); err != nil {
			return err
		}
		m.opened = true
		return m.session.WaitFor(m.sel.DetailMarker, m.cfg.ElementTimeout)
	})
	if err != nil {
		err = stepErr(ErrNavigationTimeout, "open case", err)
		log.Warn("Case skipped", "error", err)
		out.end(CaseSkipped, err)
		return out
	}

	html, err := m.session.HTML()
	if err != nil {
		err = stepErr(ErrExtractionFailed, "read case page", err)
		log.Warn("Case skipped", "error", err)
		out.end(CaseSkipped, err)
		return out
	}
	detail, err := m.extractor.ParseCase(html, m.session.URL())
	if err != nil {
		err = stepErr(ErrExtractionFailed, "extract", err)
		log.Warn("Case skipped", "error", err)
		out.end(CaseSkipped, err)
		return out
	}

	out.CNR = detail.CNR
	span.SetAttributes(attribute.String("cnr", detail.CNR))
	log = log.With("cnr", detail.CNR)

	if len(detail.Missing) > 0 {
		w := stepErr(ErrExtractionIncomplete, "extract", fmt.Errorf("recorded as unknown: %v", detail.Missing))
		log.Warn("Case fields missing", "error", w)
		out.warn(w)
	}

	if m.processed[detail.CNR] {
		log.Info("Case skipped", "error", errDuplicate)
		out.end(CaseSkipped, errDuplicate)
		return out
	}
	m.processed[detail.CNR] = true

	nextHearing := detail.NextHearingDate
	if nextHearing == database.Unknown && row.NextHearing != "" {
		nextHearing = row.NextHearing
	}
	if m.opts.UpcomingOnly && !m.upcoming(nextHearing) {
		log.Debug("Case filtered", "next_hearing", nextHearing)
		out.end(CaseFiltered, errNotUpcoming)
		return out
	}

	if m.opts.Resume {
		existing, err := m.store.FindByCNR(ctx, detail.CNR)
		if err == nil && existing.ScrapeDate == m.date && existing.Complete() {
			log.Info("Case skipped", "error", errAlreadyDone, "case_id", existing.ID)
			out.CaseID = existing.ID
			out.end(CaseSkipped, errAlreadyDone)
			return out
		}
	}

	rec := &database.CaseRecord{
		SerialNumber:       row.Serial,
		CNR:                detail.CNR,
		CaseType:           detail.CaseType,
		CourtInfo:          detail.CourtInfo,
		FilingNumber:       detail.FilingNumber,
		RegistrationNumber: detail.RegistrationNumber,
		CourtName:          row.CourtName,
		NextHearingDate:    nextHearing,
		CapturedDate:       m.now(),
		ScrapeDate:         m.date,
	}
	capture := &database.Capture{Record: rec}

	res, err := m.capturer.Capture(ctx, m.session, m.session, row.Serial, detail.Attachments)
	if err != nil {
		w := stepErr(ErrCaptureFailed, "capture", err)
		log.Warn("Case saved without PDF", "error", w)
		out.warn(w)
	} else {
		rec.PDFPath = &res.MainPath
		capture.Files = append(capture.Files, database.File{
			Kind: database.KindMain, Filename: filepath.Base(res.MainPath), Data: res.Main,
		})
		for _, a := range res.Attachments {
			rec.AdditionalPDFs = append(rec.AdditionalPDFs, a.Path)
			capture.Files = append(capture.Files, database.File{
				Kind: database.KindAdditional, Filename: filepath.Base(a.Path), Data: a.Data,
			})
		}
		if missing := len(detail.Attachments) - len(res.Attachments); missing > 0 {
			out.warn(stepErr(ErrCaptureFailed, "attachments", fmt.Errorf("%d of %d not downloaded", missing, len(detail.Attachments))))
		}

		if res.MergeErr != nil {
			rec.MergeError = res.MergeErr.Error()
			out.warn(stepErr(ErrCaptureFailed, "merge", res.MergeErr))
		} else {
			rec.MergedPDFPath = &res.MergedPath
			capture.Files = append(capture.Files, database.File{
				Kind: database.KindMerged, Filename: filepath.Base(res.MergedPath), Data: res.Merged,
			})
		}
	}

	if ctx.Err() != nil {
		log.Warn("Case discarded", "error", errDiscarded)
		out.end(CaseSkipped, errDiscarded)
		return out
	}

	// Once started the commit completes even if the run is cancelled.
	id, err := m.store.SaveCapture(context.WithoutCancel(ctx), capture)
	if err != nil {
		err = stepErr(ErrPersistence, "save", err)
		log.Error("Case not saved", "error", err)
		out.end(CaseFailed, err)
		return out
	}

	rec.ID = id
	out.CaseID = id
	out.end(CaseSaved, nil)
	log.Info("Case saved", "case_id", id, "files", len(capture.Files), "merged", rec.MergedPDFPath != nil)

	if m.OnCaseSaved != nil {
		m.OnCaseSaved(rec)
	}
	return out
}

func (m *run) upcoming(date string) bool {
	return date == m.today || date == m.tomorrow
}
