package database

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Unknown is stored for a non-mandatory field the portal did not render.
const Unknown = "unknown"

// PDFKind tags a stored PDF blob.
type PDFKind string

const (
	KindMain       PDFKind = "main_pdf"
	KindAdditional PDFKind = "additional_pdf"
	KindMerged     PDFKind = "merged_pdf"
)

// CaseRecord is one row per distinct CNR.
type CaseRecord struct {
	ID                 uint          `json:"id" gorm:"primaryKey"`
	SerialNumber       string        `json:"serial_number"`
	CNR                string        `json:"cnr_number" gorm:"column:cnr_number;size:32;uniqueIndex:idx_cases_cnr"`
	CaseType           string        `json:"case_type"`
	CourtInfo          string        `json:"court_info"`
	FilingNumber       string        `json:"filing_number"`
	RegistrationNumber string        `json:"registration_number"`
	CourtName          string        `json:"court_name"`
	NextHearingDate    string        `json:"next_hearing_date" gorm:"size:16;index"`
	CapturedDate       time.Time     `json:"captured_date"`
	ScrapeDate         string        `json:"scrape_date" gorm:"size:16;index"`
	PDFPath            *string       `json:"pdf_path"`
	AdditionalPDFs     PathList      `json:"additional_pdfs" gorm:"column:additional_pdfs;type:text"`
	MergedPDFPath      *string       `json:"merged_pdf_path"`
	MergeError         string        `json:"merge_error,omitempty" gorm:"default:''"`
	RawPDFs            []AttachedPDF `json:"-" gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE"`
	MergedPDFs         []MergedPDF   `json:"-" gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE"`
}

// PrimaryPDFPath is the merged PDF when one exists, otherwise the whole-page
// capture. Nil only when the capture itself failed.
func (c *CaseRecord) PrimaryPDFPath() *string {
	if c.MergedPDFPath != nil {
		return c.MergedPDFPath
	}
	return c.PDFPath
}

// Complete reports whether the case has its merged artifact.
func (c *CaseRecord) Complete() bool {
	return c.MergedPDFPath != nil
}

// AttachedPDF is a raw per-case file: the whole-page capture or a downloaded attachment.
type AttachedPDF struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CaseID       uint      `json:"case_id" gorm:"index"`
	Filename     string    `json:"filename"`
	FileData     []byte    `json:"-"`
	FileType     PDFKind   `json:"file_type" gorm:"size:32"`
	UploadedDate time.Time `json:"uploaded_date"`
}

// MergedPDF is the single combined output of a case.
type MergedPDF struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CaseID     uint      `json:"case_id" gorm:"index"`
	Filename   string    `json:"filename"`
	FileData   []byte    `json:"-"`
	MergedDate time.Time `json:"merged_date"`
}

// SchemaMigration records an applied migration version.
type SchemaMigration struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	Name      string
	AppliedAt time.Time
}

func (CaseRecord) TableName() string {
	return "cases"
}

func (AttachedPDF) TableName() string {
	return "pdf_files"
}

func (MergedPDF) TableName() string {
	return "merged_pdfs"
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

// PathList is stored as a ", " separated text column.
type PathList []string

func (p PathList) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return strings.Join(p, ", "), nil
}

func (p *PathList) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported type for PathList: %T", value)
	}

	var out PathList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*p = out
	return nil
}
