package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JustJay7/ecourts-capture/pkg/logger"
	"github.com/stretchr/testify/require"
)

// legacySchema is the layout written by builds that predate merged PDFs and
// scrape dates, and that never enforced CNR uniqueness.
var legacySchema = []string{
	`CREATE TABLE cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial_number TEXT,
		cnr_number TEXT,
		case_type TEXT,
		court_info TEXT,
		filing_number TEXT,
		registration_number TEXT,
		court_name TEXT,
		next_hearing_date TEXT,
		captured_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		pdf_path TEXT,
		additional_pdfs TEXT
	)`,
	`CREATE TABLE pdf_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		case_id INTEGER,
		filename TEXT,
		file_data BLOB,
		file_type TEXT,
		uploaded_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`INSERT INTO cases (serial_number, cnr_number, next_hearing_date, additional_pdfs) VALUES ('1', 'DLCT010000012024', '2024-01-15', 'a.pdf, b.pdf')`,
	`INSERT INTO cases (serial_number, cnr_number, next_hearing_date) VALUES ('1', 'DLCT010000012024', '2024-01-16')`,
	`INSERT INTO cases (serial_number, cnr_number) VALUES ('2', '')`,
	`INSERT INTO pdf_files (case_id, filename, file_data, file_type) VALUES (1, 'old.pdf', x'25504446', 'main_pdf')`,
}

func TestMigrateRepairsLegacyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := Initialize("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range legacySchema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	s := NewStore(db, logger.NewNop())
	warnings, err := s.Migrate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	joined := strings.Join(warnings, "\n")
	require.Contains(t, joined, "MergedPDFPath")
	require.Contains(t, joined, "ScrapeDate")
	require.Contains(t, joined, "MergeError")
	require.Contains(t, joined, "collapsed 1 duplicate rows for CNR DLCT010000012024 into case 2")

	ctx := context.Background()
	rec, err := s.FindByCNR(ctx, "DLCT010000012024")
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.ID)
	require.Equal(t, "2024-01-16", rec.NextHearingDate)
	require.Nil(t, rec.MergedPDFPath)

	// The legacy blob followed its case onto the surviving row.
	name, _, err := s.GetPDF(ctx, rec.ID, KindMain)
	require.NoError(t, err)
	require.Equal(t, "old.pdf", name)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.True(t, st.HasMergedPath)
	require.True(t, st.HasScrapeDate)
	require.True(t, s.DB().Migrator().HasTable(&MergedPDF{}))

	// Uniqueness now holds for new writes.
	_, err = s.UpsertCase(ctx, sampleRecord("DLCT010000012024"))
	require.NoError(t, err)
	all, err := s.ListByDateFilter(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestMigratedLegacyDatabaseAcceptsNewCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := Initialize("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range legacySchema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	require.NoError(t, db.Exec(
		`INSERT INTO cases (serial_number, cnr_number, additional_pdfs) VALUES ('3', 'DLCT010000032024', 'c.pdf, d.pdf')`,
	).Error)

	s := NewStore(db, logger.NewNop())
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	legacy, err := s.FindByCNR(ctx, "DLCT010000032024")
	require.NoError(t, err)
	require.Equal(t, PathList{"c.pdf", "d.pdf"}, legacy.AdditionalPDFs)

	rec := sampleRecord("DLCT010000992024")
	rec.AdditionalPDFs = PathList{"downloads/attachment_9_1.pdf"}
	id, err := s.UpsertCase(ctx, rec)
	require.NoError(t, err)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, rec.AdditionalPDFs, got.AdditionalPDFs)

	legacy.AdditionalPDFs = PathList{"e.pdf"}
	_, err = s.UpsertCase(ctx, legacy)
	require.NoError(t, err)
	legacy, err = s.FindByCNR(ctx, "DLCT010000032024")
	require.NoError(t, err)
	require.Equal(t, PathList{"e.pdf"}, legacy.AdditionalPDFs)
}

func TestMigrateIsRecordedOnce(t *testing.T) {
	s := newTestStore(t)

	version, err := SchemaVersion(s.DB())
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)

	warnings, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestPathListScan(t *testing.T) {
	var p PathList
	require.NoError(t, p.Scan("a.pdf, b.pdf,,"))
	require.Equal(t, PathList{"a.pdf", "b.pdf"}, p)

	require.NoError(t, p.Scan(nil))
	require.Nil(t, p)

	v, err := PathList{"x.pdf", "y.pdf"}.Value()
	require.NoError(t, err)
	require.Equal(t, "x.pdf, y.pdf", v)
}
