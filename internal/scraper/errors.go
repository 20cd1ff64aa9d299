package scraper

import (
	"errors"
	"fmt"
)

// Failure kinds. Only a structural navigation timeout and an exhausted
// CAPTCHA budget end a run; every other kind is contained to one case.
var (
	ErrNavigationTimeout    = errors.New("navigation timeout")
	ErrCaptchaRejected      = errors.New("captcha rejected")
	ErrExtractionIncomplete = errors.New("extraction incomplete")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrCaptureFailed        = errors.New("capture failed")
	ErrPersistence          = errors.New("persistence error")
)

// ErrRunActive is returned when a run is started while another is running.
var ErrRunActive = errors.New("a run is already in progress")

// ErrNoActiveRun is returned when there is no run to act on.
var ErrNoActiveRun = errors.New("no run in progress")

// StepError ties a failure kind to the step that produced it.
type StepError struct {
	Kind error
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stepErr(kind error, step string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err}
}
