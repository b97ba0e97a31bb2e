// Package captcha verifies registration challenges with Cloudflare Turnstile.
package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/config"
)

// Turnstile verifies tokens against the siteverify endpoint.
//
// With no secret configured it answers !required: production posture fails closed,
// development posture lets registration through. Transport failures follow the same rule.
// A token the service explicitly rejects is always refused.
type Turnstile struct {
	secret   string
	url      string
	required bool
	client   *http.Client
	log      *zerolog.Logger
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// New builds a verifier from the captcha config section.
func New(cfg config.Captcha, required bool, logger *zerolog.Logger) *Turnstile {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Turnstile{
		secret:   cfg.SecretKey,
		url:      cfg.VerifyURL,
		required: required,
		client:   &http.Client{Timeout: timeout},
		log:      logger,
	}
}

// Verify reports whether token passes the challenge.
func (t *Turnstile) Verify(ctx context.Context, token string) bool {
	if t.secret == "" || t.url == "" {
		if t.required {
			t.log.Error().Msg("captcha required but no secret configured, refusing")
		}
		return !t.required
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(form.Encode()))
	if err != nil {
		t.log.Error().Err(err).Msg("build captcha request")
		return !t.required
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn().Err(err).Bool("required", t.required).Msg("captcha service unreachable")
		return !t.required
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		t.log.Warn().Int("status", resp.StatusCode).Bool("required", t.required).Msg("captcha service unavailable")
		return !t.required
	}
	if resp.StatusCode != http.StatusOK {
		t.log.Warn().Int("status", resp.StatusCode).Msg("captcha verify returned non-200")
		return false
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.log.Warn().Err(err).Msg("decode captcha response")
		return false
	}
	if !out.Success {
		t.log.Debug().Strs("error_codes", out.ErrorCodes).Msg("captcha rejected")
	}
	return out.Success
}
