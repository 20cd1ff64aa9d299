package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// migration is one versioned schema step. Steps must be safe to run against
// a database created by an older build that never recorded versions.
type migration struct {
	version int
	name    string
	up      func(tx *gorm.DB) ([]string, error)
}

var migrations = []migration{
	{1, "create base tables", createBaseTables},
	{2, "add merged_pdf_path column", addCaseColumn("MergedPDFPath")},
	{3, "add scrape_date column", addCaseColumn("ScrapeDate")},
	{4, "add merge_error column", addCaseColumn("MergeError")},
	{5, "collapse duplicate CNRs and enforce uniqueness", uniqueCNR},
	{6, "create lookup indexes", createIndexes},
}

// RunMigrations applies every migration newer than the recorded version and
// returns non-fatal warnings about drift it repaired.
func RunMigrations(db *gorm.DB) ([]string, error) {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	var warnings []string
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			w, err := m.up(tx)
			if err != nil {
				return err
			}
			warnings = append(warnings, w...)
			return tx.Create(&SchemaMigration{
				Version:   m.version,
				Name:      m.name,
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return warnings, fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return warnings, nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(db *gorm.DB) (int, error) {
	var version int
	err := db.Model(&SchemaMigration{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error
	return version, err
}

func createBaseTables(tx *gorm.DB) ([]string, error) {
	m := tx.Migrator()
	for _, model := range []interface{}{&CaseRecord{}, &AttachedPDF{}, &MergedPDF{}} {
		if m.HasTable(model) {
			continue
		}
		if err := m.CreateTable(model); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func addCaseColumn(field string) func(tx *gorm.DB) ([]string, error) {
	return func(tx *gorm.DB) ([]string, error) {
		m := tx.Migrator()
		if m.HasColumn(&CaseRecord{}, field) {
			return nil, nil
		}
		if err := m.AddColumn(&CaseRecord{}, field); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("cases table was missing column for %s; added with default value", field)}, nil
	}
}

// uniqueCNR keeps the newest row per CNR, re-parents the PDFs of the older
// rows onto it, then creates the unique index.
func uniqueCNR(tx *gorm.DB) ([]string, error) {
	if tx.Migrator().HasIndex(&CaseRecord{}, "idx_cases_cnr") {
		return nil, nil
	}

	if err := tx.Model(&CaseRecord{}).Where("cnr_number = ?", "").
		Update("cnr_number", gorm.Expr("NULL")).Error; err != nil {
		return nil, err
	}

	type dup struct {
		CNR  string `gorm:"column:cnr_number"`
		Keep uint   `gorm:"column:keep"`
	}
	var dups []dup
	if err := tx.Model(&CaseRecord{}).
		Select("cnr_number, MAX(id) AS keep").
		Where("cnr_number IS NOT NULL").
		Group("cnr_number").
		Having("COUNT(*) > 1").
		Scan(&dups).Error; err != nil {
		return nil, err
	}

	var warnings []string
	for _, d := range dups {
		var stale []uint
		if err := tx.Model(&CaseRecord{}).
			Where("cnr_number = ? AND id <> ?", d.CNR, d.Keep).
			Pluck("id", &stale).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&AttachedPDF{}).Where("case_id IN ?", stale).Update("case_id", d.Keep).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&MergedPDF{}).Where("case_id IN ?", stale).Update("case_id", d.Keep).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("id IN ?", stale).Delete(&CaseRecord{}).Error; err != nil {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf("collapsed %d duplicate rows for CNR %s into case %d", len(stale), d.CNR, d.Keep))
	}

	if err := tx.Migrator().CreateIndex(&CaseRecord{}, "idx_cases_cnr"); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// createIndexes creates lookup indexes that older tables were created without.
func createIndexes(tx *gorm.DB) ([]string, error) {
	indexes := []struct {
		model interface{}
		field string
	}{
		{&CaseRecord{}, "NextHearingDate"},
		{&CaseRecord{}, "ScrapeDate"},
		{&AttachedPDF{}, "CaseID"},
		{&MergedPDF{}, "CaseID"},
	}

	m := tx.Migrator()
	for _, idx := range indexes {
		if m.HasIndex(idx.model, idx.field) {
			continue
		}
		if err := m.CreateIndex(idx.model, idx.field); err != nil {
			return nil, fmt.Errorf("failed to create index on %s: %w", idx.field, err)
		}
	}
	return nil, nil
}

// dropAll removes every table this package owns, including the version log.
func dropAll(db *gorm.DB) error {
	m := db.Migrator()
	for _, model := range []interface{}{&AttachedPDF{}, &MergedPDF{}, &CaseRecord{}, &SchemaMigration{}} {
		if !m.HasTable(model) {
			continue
		}
		if err := m.DropTable(model); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}
