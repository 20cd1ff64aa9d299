package extractor

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/PuerkitoBio/goquery"
)

// ErrMissingCNR is returned when a detail page carries no recognizable CNR.
var ErrMissingCNR = errors.New("case number record not found on page")

var (
	cnrNoted  = regexp.MustCompile(`(?i)\b([A-Z0-9]{16})\s*\(\s*Note the CNR number`)
	cnrStrict = regexp.MustCompile(`(?i)\b[A-Z]{4}[0-9]{12}\b`)
	cnrLoose  = regexp.MustCompile(`(?i)\b[A-Z0-9]{16}\b`)
	nextLabel = regexp.MustCompile(`(?i)(next\s*hearing\s*date|next\s*date|next\s*hearing)[:\-\s]*`)
)

// ListLayout holds the selectors that locate cases on a results listing.
type ListLayout struct {
	Table       string
	ViewControl string
	Heading     string
}

// DefaultListLayout matches the cause-list results page.
var DefaultListLayout = ListLayout{
	Table:       "table",
	ViewControl: "a",
	Heading:     "h1, h2, h3",
}

// ResultRow is one case entry on a results listing.
type ResultRow struct {
	// ViewIndex is the position of the row's view control among all view
	// controls on the page, or -1 when the row has none.
	ViewIndex   int
	Serial      string
	CourtName   string
	NextHearing string
	Text        string
}

// CaseDetail holds the fields read from one case-detail page.
type CaseDetail struct {
	CNR                string
	CaseType           string
	CourtInfo          string
	FilingNumber       string
	RegistrationNumber string
	NextHearingDate    string
	Attachments        []string
	// Missing lists optional fields that were absent and recorded as unknown.
	Missing []Field
}

// Extractor reads structured case data out of rendered portal HTML.
type Extractor struct {
	fields FieldMap
	layout ListLayout
}

// New creates an extractor. Zero-valued arguments select the defaults.
func New(fields FieldMap, layout ListLayout) *Extractor {
	if len(fields) == 0 {
		fields = DefaultFieldMap
	}
	if layout.Table == "" {
		layout.Table = DefaultListLayout.Table
	}
	if layout.ViewControl == "" {
		layout.ViewControl = DefaultListLayout.ViewControl
	}
	if layout.Heading == "" {
		layout.Heading = DefaultListLayout.Heading
	}
	return &Extractor{fields: fields, layout: layout}
}

// ViewSelector is the selector whose n-th match opens the n-th openable row.
func (e *Extractor) ViewSelector() string {
	return e.layout.Table + " " + e.layout.ViewControl
}

// ParseResults lists the case rows on a results page in document order.
// courtFallback is used when the listing carries no court heading.
func (e *Extractor) ParseResults(html, courtFallback string) ([]ResultRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	court := strings.TrimSpace(doc.Find(e.layout.Heading).First().Text())
	if court == "" {
		court = courtFallback
	}

	views := doc.Find(e.ViewSelector())

	var rows []ResultRow
	doc.Find(e.layout.Table).Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}

		row := ResultRow{
			ViewIndex: -1,
			Serial:    cleanText(cells.First().Text()),
			CourtName: court,
			Text:      cleanText(tr.Text()),
		}
		if row.Serial == "" && cells.Length() < 2 {
			return
		}

		if link := tr.Find(e.layout.ViewControl).First(); link.Length() > 0 {
			row.ViewIndex = views.IndexOfSelection(link)
		}

		row.NextHearing = rowHearingDate(row.Text)
		rows = append(rows, row)
	})

	return rows, nil
}

// ParseCase extracts the case fields and attachment links from a detail
// page. baseURL resolves relative attachment links.
func (e *Extractor) ParseCase(html, baseURL string) (*CaseDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	values := e.labelledValues(doc)
	detail := &CaseDetail{
		CNR:                cnrFrom(values[FieldCNR]),
		CaseType:           values[FieldCaseType],
		CourtInfo:          values[FieldCourtInfo],
		FilingNumber:       values[FieldFilingNumber],
		RegistrationNumber: values[FieldRegistrationNumber],
		NextHearingDate:    NormalizeDate(values[FieldNextHearing]),
	}

	if detail.CNR == "" {
		detail.CNR = cnrFromText(doc.Text())
	}
	if detail.CNR == "" {
		return nil, ErrMissingCNR
	}

	optional := []struct {
		field Field
		value *string
	}{
		{FieldCaseType, &detail.CaseType},
		{FieldCourtInfo, &detail.CourtInfo},
		{FieldFilingNumber, &detail.FilingNumber},
		{FieldRegistrationNumber, &detail.RegistrationNumber},
		{FieldNextHearing, &detail.NextHearingDate},
	}
	for _, o := range optional {
		if *o.value == "" {
			*o.value = database.Unknown
			detail.Missing = append(detail.Missing, o.field)
		}
	}

	detail.Attachments = attachmentLinks(doc, baseURL)
	return detail, nil
}

// labelledValues walks label/value cell pairs and definition-style markup.
// The first value found for a field wins.
func (e *Extractor) labelledValues(doc *goquery.Document) map[Field]string {
	values := make(map[Field]string)
	set := func(label, value string) bool {
		f, ok := e.fields.Lookup(label)
		if !ok {
			return false
		}
		value = cleanText(value)
		if _, seen := values[f]; !seen && value != "" {
			values[f] = value
		}
		return true
	}

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		for i := 0; i+1 < cells.Length(); i++ {
			if set(cells.Eq(i).Text(), cells.Eq(i+1).Text()) {
				i++
			}
		}
	})

	doc.Find("label, dt").Each(func(_ int, l *goquery.Selection) {
		set(l.Text(), l.Next().Text())
	})

	return values
}

func rowHearingDate(text string) string {
	if loc := nextLabel.FindStringIndex(text); loc != nil {
		if d := NormalizeDate(text[loc[1]:]); d != "" {
			return d
		}
	}
	return ""
}

func cnrFrom(value string) string {
	if m := cnrStrict.FindString(value); m != "" {
		return strings.ToUpper(m)
	}
	if m := cnrLoose.FindString(value); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

func cnrFromText(text string) string {
	if m := cnrNoted.FindStringSubmatch(text); len(m) > 1 {
		return strings.ToUpper(m[1])
	}
	if m := cnrStrict.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

// attachmentLinks returns absolute PDF links in discovery order without
// duplicates.
func attachmentLinks(doc *goquery.Document, baseURL string) []string {
	base, _ := url.Parse(baseURL)

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil || !strings.EqualFold(path.Ext(ref.Path), ".pdf") {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}

		abs := ref.String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links
}

func cleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(strings.ReplaceAll(s, "\u00a0", " "), " "))
}
