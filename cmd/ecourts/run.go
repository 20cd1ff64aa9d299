package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/extractor"
	"github.com/JustJay7/ecourts-capture/internal/pdf"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		date     string
		upcoming bool
		category string
		resume   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture the cause list for a date",
		Long: `Open the cause list for a date, ask for the CAPTCHA, then capture
every listed case. Interrupt with Ctrl-C to stop after the current case.`,
		Example: "  ecourts run --date 2024-01-15 --upcoming --category civil",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := scraper.ParseCategory(category)
			if err != nil {
				return err
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			opts := scraper.Options{Category: cat, UpcomingOnly: upcoming, Resume: resume}
			if date != "" {
				canonical := extractor.NormalizeDate(date)
				if canonical == "" {
					return fmt.Errorf("invalid --date %q", date)
				}
				if opts.Date, err = time.ParseInLocation(database.DateLayout, canonical, a.cfg.Location()); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := a.sessionFactory()(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			runner := scraper.NewRunner(a.cfg, a.log, session, a.terminalSolver(), a.store, pdf.NewCapturer(a.cfg.DownloadDir, a.log))
			report, runErr := runner.Run(ctx, opts)
			printReport(os.Stdout, report)
			return runErr
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "cause list date (default today)")
	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "only capture cases heard today or tomorrow")
	cmd.Flags().StringVar(&category, "category", "civil", "civil or criminal")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip cases already captured for this date")

	return cmd
}

func printReport(w io.Writer, r *scraper.Report) {
	if r == nil {
		return
	}

	state := color.New(color.FgGreen).Sprint(r.State)
	switch {
	case r.State == scraper.Failed:
		state = color.New(color.FgRed).Sprint(r.State)
	case r.Cancelled:
		state = color.New(color.FgYellow).Sprint("cancelled")
	}

	fmt.Fprintf(w, "Run %s (%s): %s\n", r.Date, r.Category, state)
	if r.NoRecords {
		fmt.Fprintln(w, "  No cases listed for this date.")
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", color.New(color.FgRed).Sprint("error:"), r.Error)
	}

	if len(r.Cases) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Page", "Serial", "CNR", "Status", "Detail"})
		for _, c := range r.Cases {
			detail := c.Error
			if detail == "" && len(c.Warnings) > 0 {
				detail = c.Warnings[0]
			}
			t.AppendRow(table.Row{c.Page, c.Serial, c.CNR, statusLabel(c.Status), detail})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}

	fmt.Fprintf(w, "  pages %d, captcha attempts %d, saved %d, skipped %d, filtered %d, failed %d, took %s\n",
		r.Pages, r.Attempts,
		r.Count(scraper.CaseSaved), r.Count(scraper.CaseSkipped),
		r.Count(scraper.CaseFiltered), r.Count(scraper.CaseFailed),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
}

func statusLabel(s scraper.CaseStatus) string {
	switch s {
	case scraper.CaseSaved:
		return color.New(color.FgGreen).Sprint(s)
	case scraper.CaseFailed:
		return color.New(color.FgRed).Sprint(s)
	case scraper.CaseSkipped:
		return color.New(color.FgYellow).Sprint(s)
	}
	return string(s)
}
