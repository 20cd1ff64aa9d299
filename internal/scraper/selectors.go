package scraper

import "regexp"

// Selectors locate the portal controls the run interacts with.
type Selectors struct {
	DatePicker     string
	CaptchaImage   string
	CaptchaInput   string
	CaptchaRefresh string
	CivilButton    string
	CriminalButton string
	ErrorBanner    string
	ResultsTable   string
	ViewControl    string
	Heading        string
	NextPage       string
	BackControl    string
	DetailMarker   string

	// NoRecords matches banner text meaning the search succeeded with no rows.
	NoRecords *regexp.Regexp
}

// DefaultSelectors matches the eCourts cause-list flow.
var DefaultSelectors = Selectors{
	DatePicker:     "input#causelist_date, input[name*='date']",
	CaptchaImage:   "img#captcha_image, img[src*='captcha']",
	CaptchaInput:   "input[id*='captcha'], input[name*='captcha']",
	CaptchaRefresh: "a[onclick*='captcha'], img[onclick*='captcha'], button[onclick*='captcha']",
	CivilButton:    "button[onclick*=\"'civ\"], input[value='Civil']",
	CriminalButton: "button[onclick*=\"'cri\"], input[value='Criminal']",
	ErrorBanner:    ".alert-danger, #errSpan, .error-message, span.error",
	ResultsTable:   "#dispTable",
	ViewControl:    "a",
	Heading:        "h1, h2, h3",
	NextPage:       "a.next, a[aria-label='Next'], a[rel='next']",
	BackControl:    "a[href*='history.back'], a[onclick*='back'], button[onclick*='back']",
	DetailMarker:   ".case_details_table, #history_cnr",
	NoRecords:      regexp.MustCompile(`(?i)no\s+records?\s+found|record\s+not\s+found`),
}

func (s Selectors) submitButton(c Category) string {
	if c == CategoryCriminal {
		return s.CriminalButton
	}
	return s.CivilButton
}
