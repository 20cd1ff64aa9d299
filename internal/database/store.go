package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/uniplaces/carbon"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a case or PDF lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DateLayout is the canonical representation of every persisted date string.
const DateLayout = "2006-01-02"

// Store persists case records and their PDFs.
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// File is one PDF blob to be stored with a case.
type File struct {
	Kind     PDFKind
	Filename string
	Data     []byte
}

// Capture is everything produced for one case; it is committed atomically.
type Capture struct {
	Record *CaseRecord
	Files  []File
}

// Filter selects records for listing.
type Filter struct {
	// Upcoming restricts to next-hearing today or tomorrow in Location.
	Upcoming   bool
	ScrapeDate string
	Now        time.Time
	Location   *time.Location
}

// Stats summarises store contents.
type Stats struct {
	Cases         int64 `json:"cases"`
	RawPDFs       int64 `json:"raw_pdfs"`
	MergedPDFs    int64 `json:"merged_pdfs"`
	SchemaVersion int   `json:"schema_version"`
	HasMergedPath bool  `json:"has_merged_pdf_path"`
	HasScrapeDate bool  `json:"has_scrape_date"`
}

// NewStore wraps an open database. Call Migrate before use.
func NewStore(db *gorm.DB, logger *logger.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open initializes the database and migrates it. Drift repairs are logged as
// warnings and do not fail the open.
func Open(driver, pathOrDSN string, logger *logger.Logger) (*Store, error) {
	db, err := Initialize(driver, pathOrDSN)
	if err != nil {
		return nil, err
	}
	s := NewStore(db, logger)
	if _, err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	warnings, err := RunMigrations(s.db.WithContext(ctx))
	for _, w := range warnings {
		s.logger.Warn("Schema drift repaired", "detail", w)
	}
	return warnings, err
}

// UpsertCase inserts the record or, when its CNR already exists, updates the
// mutable fields in place. The returned id is stable across re-captures.
func (s *Store) UpsertCase(ctx context.Context, rec *CaseRecord) (uint, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = upsertCase(tx, rec, true)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// upsertCase resolves by CNR. When withPDFs is false the stored PDF columns
// are left as they are, so a re-capture without artifacts never erases them.
func upsertCase(tx *gorm.DB, rec *CaseRecord, withPDFs bool) (uint, error) {
	if rec.CNR == "" {
		return 0, fmt.Errorf("cannot persist a case without CNR")
	}

	var existing CaseRecord
	err := tx.Select("id").Where("cnr_number = ?", rec.CNR).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.ID = 0
		if err := tx.Omit("RawPDFs", "MergedPDFs").Create(rec).Error; err != nil {
			return 0, fmt.Errorf("failed to insert case %s: %w", rec.CNR, err)
		}
		return rec.ID, nil
	case err != nil:
		return 0, fmt.Errorf("failed to look up case %s: %w", rec.CNR, err)
	}

	rec.ID = existing.ID
	updates := map[string]interface{}{
		"serial_number":       rec.SerialNumber,
		"case_type":           rec.CaseType,
		"court_info":          rec.CourtInfo,
		"filing_number":       rec.FilingNumber,
		"registration_number": rec.RegistrationNumber,
		"court_name":          rec.CourtName,
		"next_hearing_date":   rec.NextHearingDate,
		"captured_date":       rec.CapturedDate,
		"scrape_date":         rec.ScrapeDate,
	}
	if withPDFs {
		updates["pdf_path"] = rec.PDFPath
		updates["additional_pdfs"] = rec.AdditionalPDFs
		updates["merged_pdf_path"] = rec.MergedPDFPath
		updates["merge_error"] = rec.MergeError
	}
	if err := tx.Model(&CaseRecord{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("failed to update case %s: %w", rec.CNR, err)
	}
	return existing.ID, nil
}

// AddPDF stores one blob for a case. Merged blobs go to merged_pdfs.
func (s *Store) AddPDF(ctx context.Context, caseID uint, kind PDFKind, data []byte, filename string) error {
	return addPDF(s.db.WithContext(ctx), caseID, kind, data, filename, time.Now())
}

func addPDF(tx *gorm.DB, caseID uint, kind PDFKind, data []byte, filename string, at time.Time) error {
	if kind == KindMerged {
		return tx.Create(&MergedPDF{
			CaseID:     caseID,
			Filename:   filename,
			FileData:   data,
			MergedDate: at,
		}).Error
	}
	return tx.Create(&AttachedPDF{
		CaseID:       caseID,
		Filename:     filename,
		FileData:     data,
		FileType:     kind,
		UploadedDate: at,
	}).Error
}

// SaveCapture upserts the record and replaces its stored PDFs in a single
// transaction, so a failure leaves neither an orphaned PDF nor a half-updated case.
func (s *Store) SaveCapture(ctx context.Context, c *Capture) (uint, error) {
	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if id, err = upsertCase(tx, c.Record, len(c.Files) > 0); err != nil {
			return err
		}
		if len(c.Files) == 0 {
			return nil
		}
		if err := tx.Where("case_id = ?", id).Delete(&AttachedPDF{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous PDFs: %w", err)
		}
		if err := tx.Where("case_id = ?", id).Delete(&MergedPDF{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous merged PDF: %w", err)
		}
		now := time.Now()
		for _, f := range c.Files {
			if err := addPDF(tx, id, f.Kind, f.Data, f.Filename, now); err != nil {
				return fmt.Errorf("failed to store %s: %w", f.Filename, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindByCNR returns the record for a CNR or ErrNotFound.
func (s *Store) FindByCNR(ctx context.Context, cnr string) (*CaseRecord, error) {
	var rec CaseRecord
	err := s.db.WithContext(ctx).Where("cnr_number = ?", cnr).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByID returns the record with the given id or ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id uint) (*CaseRecord, error) {
	var rec CaseRecord
	err := s.db.WithContext(ctx).Take(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpcomingWindow returns today's and tomorrow's canonical dates in loc.
func UpcomingWindow(now time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.Local
	}
	today := carbon.NewCarbon(now.In(loc))
	tomorrow := carbon.NewCarbon(now.In(loc)).AddDay()
	return today.DateString(), tomorrow.DateString()
}

// ListByDateFilter returns records matching the filter, newest capture first.
func (s *Store) ListByDateFilter(ctx context.Context, f Filter) ([]CaseRecord, error) {
	q := s.db.WithContext(ctx).Model(&CaseRecord{})
	if f.Upcoming {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		today, tomorrow := UpcomingWindow(now, f.Location)
		q = q.Where("next_hearing_date IN ?", []string{today, tomorrow})
	}
	if f.ScrapeDate != "" {
		q = q.Where("scrape_date = ?", f.ScrapeDate)
	}

	var records []CaseRecord
	if err := q.Order("captured_date DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return records, nil
}

// GetPDF returns the first stored blob of the given kind for a case.
func (s *Store) GetPDF(ctx context.Context, caseID uint, kind PDFKind) (string, []byte, error) {
	db := s.db.WithContext(ctx)
	if kind == KindMerged {
		var m MergedPDF
		err := db.Where("case_id = ?", caseID).Order("id").Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrNotFound
		}
		if err != nil {
			return "", nil, err
		}
		return m.Filename, m.FileData, nil
	}

	var a AttachedPDF
	err := db.Where("case_id = ? AND file_type = ?", caseID, kind).Order("id").Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return a.Filename, a.FileData, nil
}

// CountPDFs returns how many raw and merged blobs a case owns.
func (s *Store) CountPDFs(ctx context.Context, caseID uint) (raw int64, merged int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&AttachedPDF{}).Where("case_id = ?", caseID).Count(&raw).Error; err != nil {
		return
	}
	err = db.Model(&MergedPDF{}).Where("case_id = ?", caseID).Count(&merged).Error
	return
}

// DeleteCase removes a case and every PDF it owns.
func (s *Store) DeleteCase(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("case_id = ?", id).Delete(&AttachedPDF{}).Error; err != nil {
			return err
		}
		if err := tx.Where("case_id = ?", id).Delete(&MergedPDF{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&CaseRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Reset drops and recreates every table. This is the only way records are
// removed in bulk.
func (s *Store) Reset(ctx context.Context) error {
	if err := dropAll(s.db.WithContext(ctx)); err != nil {
		return err
	}
	_, err := s.Migrate(ctx)
	return err
}

// Stats reports row counts and which drift-prone columns exist.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{}
	if err := db.Model(&CaseRecord{}).Count(&st.Cases).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&AttachedPDF{}).Count(&st.RawPDFs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&MergedPDF{}).Count(&st.MergedPDFs).Error; err != nil {
		return nil, err
	}
	version, err := SchemaVersion(db)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = version
	st.HasMergedPath = db.Migrator().HasColumn(&CaseRecord{}, "MergedPDFPath")
	st.HasScrapeDate = db.Migrator().HasColumn(&CaseRecord{}, "ScrapeDate")
	return st, nil
}
