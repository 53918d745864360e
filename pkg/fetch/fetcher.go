package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xucian/grabimg/pkg/config"
	"github.com/xucian/grabimg/pkg/utils"
)

// Fetcher performs single-attempt HTTP requests carrying the identifying headers
type Fetcher struct {
	client    *http.Client
	userAgent string
	accept    string
	log       *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg config.Config, log *logrus.Entry) *Fetcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	accept := cfg.Accept
	if accept == "" {
		accept = config.DefaultAccept
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		accept:    accept,
		log:       log,
	}
}

// newRequest builds a request with exactly the User-Agent and Accept headers set
func (f *Fetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s '%s': %w", utils.ErrRequestCreation, method, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", f.accept)
	return req, nil
}

// Do executes one request and classifies the outcome.
// On success the caller must close the response body. On error the body is already closed.
// No retries are performed.
func (f *Fetcher) Do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	reqLog := f.log.WithFields(logrus.Fields{"url": rawURL, "method": method})

	req, err := f.newRequest(ctx, method, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.Cancelled(ctx, method)
		}
		reqLog.Debugf("Network error: %v", err)
		return nil, fmt.Errorf("%w: %w", utils.ErrNetwork, err)
	}

	statusCode := resp.StatusCode
	resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode})

	var statusErr error
	switch {
	case statusCode >= 200 && statusCode < 300:
		resLog.Debug("Successfully fetched")
		return resp, nil
	case statusCode >= 500:
		statusErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
	case statusCode >= 400:
		statusErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
	default:
		statusErr = fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
	}
	resLog.Debugf("Non-success status: %v", statusErr)
	drainAndClose(resp)
	return nil, fmt.Errorf("%w: %w", utils.ErrNetwork, statusErr)
}

// Head issues a metadata-only request and returns the declared Content-Type (possibly empty).
// Every failure is reported as ErrProbeRejected.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.Do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrProbeRejected, err)
	}
	drainAndClose(resp)
	return resp.Header.Get("Content-Type"), nil
}

// GetBytes fetches rawURL and reads at most maxBytes of its body into buf.
// maxBytes <= 0 means unlimited. A body longer than maxBytes yields ErrImageTooLarge.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string, maxBytes int64, buf *bytes.Buffer) (contentType string, err error) {
	resp, err := f.Do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp)

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return "", fmt.Errorf("%w: '%s' declares %d bytes (limit %d)", utils.ErrImageTooLarge, rawURL, resp.ContentLength, maxBytes)
	}

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		// Read one byte past the limit to detect truncation
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := buf.ReadFrom(reader)
	if err != nil {
		if ctx.Err() != nil {
			return "", utils.Cancelled(ctx, "body read")
		}
		return "", fmt.Errorf("%w: '%s' after %d bytes: %w", utils.ErrResponseBodyRead, rawURL, n, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return "", fmt.Errorf("%w: '%s' exceeds %d bytes", utils.ErrImageTooLarge, rawURL, maxBytes)
	}
	return resp.Header.Get("Content-Type"), nil
}

// GetText fetches rawURL and returns at most maxBytes of its body as a string.
// Longer documents are truncated rather than rejected.
func (f *Fetcher) GetText(ctx context.Context, rawURL string, maxBytes int64) (string, error) {
	resp, err := f.Do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp)

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return "", utils.Cancelled(ctx, "body read")
		}
		return "", fmt.Errorf("%w: '%s': %w", utils.ErrResponseBodyRead, rawURL, err)
	}
	return string(body), nil
}

// drainAndClose discards the rest of the body so the connection can be reused
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
