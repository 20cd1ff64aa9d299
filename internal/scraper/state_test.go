package scraper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_captcha", AwaitingCaptcha.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Idle.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, NextPage.Terminal())

	b, err := json.Marshal(Progress{State: ResultsListed, Page: 2})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"results_listed"`)
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		err  bool
	}{
		{in: "", want: CategoryCivil},
		{in: "Civil", want: CategoryCivil},
		{in: " criminal ", want: CategoryCriminal},
		{in: "family", err: true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStepErrorMatchesKindAndCause(t *testing.T) {
	cause := assert.AnError
	err := error(stepErr(ErrNavigationTimeout, "results table", cause))

	assert.ErrorIs(t, err, ErrNavigationTimeout)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCaptchaRejected)
	assert.Equal(t, "results table: navigation timeout: "+cause.Error(), err.Error())
}
