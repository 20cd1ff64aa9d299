package scraper

import (
	"fmt"
	"strings"
)

// State is a step of the portal navigation sequence.
type State int

const (
	Idle State = iota
	AwaitingDateSelection
	AwaitingCaptcha
	ResultsListed
	CaseOpen
	CaptureDone
	NextPage
	Failed
)

var stateNames = [...]string{
	Idle:                  "idle",
	AwaitingDateSelection: "awaiting_date_selection",
	AwaitingCaptcha:       "awaiting_captcha",
	ResultsListed:         "results_listed",
	CaseOpen:              "case_open",
	CaptureDone:           "capture_done",
	NextPage:              "next_page",
	Failed:                "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the run has stopped.
func (s State) Terminal() bool {
	return s == Idle || s == Failed
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Category is the case type searched on the cause list.
type Category string

const (
	CategoryCivil    Category = "civil"
	CategoryCriminal Category = "criminal"
)

// ParseCategory accepts "civil" or "criminal", defaulting to civil.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "civil":
		return CategoryCivil, nil
	case "criminal":
		return CategoryCriminal, nil
	}
	return "", fmt.Errorf("unknown case category %q", s)
}
