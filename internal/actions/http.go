package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kingrea/butler/internal/logbook"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTP performs a request and checks the response status.
// Options: url (required), method (GET), expect_status (any 2xx), timeout.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates the http action.
func NewHTTP() *HTTP {
	return &HTTP{client: &http.Client{}}
}

// Name implements Action.
func (*HTTP) Name() string { return "http" }

// Validate implements Action.
func (*HTTP) Validate(opts Options) error {
	raw := strings.TrimSpace(opts.String("url"))
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidOptions)
	}
	// Templated URLs are only known after rendering.
	if !strings.Contains(raw, "{{") {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%w: url %q is not absolute", ErrInvalidOptions, raw)
		}
	}
	if _, err := opts.Int("expect_status"); err != nil {
		return err
	}
	if _, err := opts.Duration("timeout"); err != nil {
		return err
	}
	return nil
}

// Run implements Action.
func (h *HTTP) Run(ctx context.Context, opts Options) error {
	timeout, err := opts.Duration("timeout")
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(opts.String("method")))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if payload := opts.String("body"); payload != "" {
		body = strings.NewReader(payload)
	}
	target := opts.String("url")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("http: build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	logbook.FromContext(ctx).Debug("http: %s %s -> %d", method, target, resp.StatusCode)
	expect, err := opts.Int("expect_status")
	if err != nil {
		return err
	}
	switch {
	case expect != 0 && resp.StatusCode != expect:
		return fmt.Errorf("http: %s %s: status %d, want %d", method, target, resp.StatusCode, expect)
	case expect == 0 && (resp.StatusCode < 200 || resp.StatusCode > 299):
		return fmt.Errorf("http: %s %s: status %d", method, target, resp.StatusCode)
	}
	return nil
}
