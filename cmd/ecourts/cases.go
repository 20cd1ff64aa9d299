package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/extractor"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func casesCmd() *cobra.Command {
	var (
		upcoming   bool
		scrapeDate string
	)

	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List captured cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			f := database.Filter{Upcoming: upcoming, Now: time.Now(), Location: a.cfg.Location()}
			if scrapeDate != "" {
				if f.ScrapeDate = extractor.NormalizeDate(scrapeDate); f.ScrapeDate == "" {
					return fmt.Errorf("invalid --scrape-date %q", scrapeDate)
				}
			}

			records, err := a.store.ListByDateFilter(cmd.Context(), f)
			if err != nil {
				return err
			}
			renderCases(os.Stdout, records)
			return nil
		},
	}

	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "only cases heard today or tomorrow")
	cmd.Flags().StringVar(&scrapeDate, "scrape-date", "", "only cases captured from this cause list date")

	return cmd
}

func renderCases(w io.Writer, records []database.CaseRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No cases found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "CNR", "Serial", "Case Type", "Court", "Next Hearing", "Captured", "PDF"})
	for _, r := range records {
		pdfPath := "-"
		if p := r.PrimaryPDFPath(); p != nil {
			pdfPath = *p
		}
		t.AppendRow(table.Row{
			r.ID, r.CNR, r.SerialNumber, r.CaseType, r.CourtName, r.NextHearingDate,
			r.CapturedDate.Format("2006-01-02 15:04"), pdfPath,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", len(records)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
