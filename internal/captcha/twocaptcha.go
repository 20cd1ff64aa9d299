package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	twoCaptchaURL  = "http://2captcha.com"
	notReady       = "CAPCHA_NOT_READY"
	defaultPolls   = 30
	defaultPollGap = 3 * time.Second
)

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// TwoCaptcha solves challenges through the 2Captcha image service.
type TwoCaptcha struct {
	client   *resty.Client
	key      string
	polls    int
	interval time.Duration
}

// NewTwoCaptcha creates a service solver. An empty baseURL uses the public
// endpoint.
func NewTwoCaptcha(key, baseURL string) *TwoCaptcha {
	if baseURL == "" {
		baseURL = twoCaptchaURL
	}
	return &TwoCaptcha{
		client:   resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		key:      key,
		polls:    defaultPolls,
		interval: defaultPollGap,
	}
}

// Solve uploads the image and polls until the service returns text.
func (s *TwoCaptcha) Solve(ctx context.Context, ch Challenge) (string, error) {
	var submit twoCaptchaResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key":    s.key,
			"method": "base64",
			"body":   base64.StdEncoding.EncodeToString(ch.Image),
			"json":   "1",
		}).
		SetResult(&submit).
		ForceContentType("application/json").
		Post("/in.php")
	if err != nil {
		return "", fmt.Errorf("failed to submit to 2captcha: %w", err)
	}
	if resp.IsError() || submit.Status != 1 {
		return "", fmt.Errorf("2captcha submission failed: %s", submit.Request)
	}

	id := submit.Request
	for i := 0; i < s.polls; i++ {
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		var result twoCaptchaResponse
		_, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"key":    s.key,
				"action": "get",
				"id":     id,
				"json":   "1",
			}).
			SetResult(&result).
			ForceContentType("application/json").
			Get("/res.php")
		if err != nil {
			continue
		}

		if result.Status == 1 {
			if result.Request == "" {
				return "", ErrEmptyAnswer
			}
			return result.Request, nil
		}
		if result.Request != notReady {
			return "", fmt.Errorf("2captcha error: %s", result.Request)
		}
	}

	return "", fmt.Errorf("2captcha timeout")
}
