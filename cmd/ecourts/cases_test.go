package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestRenderCases(t *testing.T) {
	merged := "downloads/merged_case_1_20240115_100000.pdf"
	records := []database.CaseRecord{
		{ID: 1, CNR: "DLCT010000012024", SerialNumber: "1", NextHearingDate: "2024-01-16", MergedPDFPath: &merged},
		{ID: 2, CNR: "DLCT010000022024", SerialNumber: "2", NextHearingDate: database.Unknown},
	}

	var buf bytes.Buffer
	renderCases(&buf, records)
	out := buf.String()

	assert.Contains(t, out, "DLCT010000012024")
	assert.Contains(t, out, merged)
	assert.Contains(t, out, "DLCT010000022024")
	assert.Contains(t, out, "unknown")
}

func TestRenderCasesEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderCases(&buf, nil)
	assert.Equal(t, "No cases found.\n", buf.String())
}

func TestPrintReport(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r := &scraper.Report{
		Date:     "2024-01-15",
		Category: scraper.CategoryCivil,
		State:    scraper.Idle,
		Pages:    1,
		Attempts: 2,
		Cases: []scraper.CaseOutcome{
			{Page: 1, Serial: "1", CNR: "DLCT010000012024", Status: scraper.CaseSaved},
			{Page: 1, Serial: "2", Status: scraper.CaseSkipped, Error: "extract: extraction failed"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "Run 2024-01-15 (civil): idle")
	assert.Contains(t, out, "extraction failed")
	assert.Contains(t, out, "saved 1, skipped 1, filtered 0, failed 0, took 1m30s")
}

func TestResetRequiresConfirmation(t *testing.T) {
	cmd := resetCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}
