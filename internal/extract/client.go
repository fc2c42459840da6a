// Package extract calls the external service that reads boundary
// coordinates out of an uploaded survey plan.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/ilemi-bj/foncier-geo/internal/boundary"
	"github.com/ilemi-bj/foncier-geo/internal/core/httpclient"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
)

const (
	upstreamName   = "extraction"
	maxErrorBody   = 512
	maxResponseLen = 8 << 20
)

var ErrNotConfigured = errors.New("coordinate extraction service is not configured")

// StatusError is a non-2xx answer from the extraction service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("extraction service returned %d: %s", e.Status, e.Body)
}

type Client struct {
	url  string
	http *http.Client
}

func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: httpclient.NewOutbound(timeout)}
}

func (c *Client) Configured() bool { return c != nil && c.url != "" }

// Extract posts the document as the multipart field "file" and decodes the
// returned boundary points.
func (c *Client) Extract(ctx context.Context, filename, contentType string, r io.Reader) ([]model.IncomingPoint, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("extract: create part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("extract: copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("extract: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("extract: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency(upstreamName, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract: call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(excerpt))}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, fmt.Errorf("extract: read response: %w", err)
	}
	points, err := boundary.DecodePoints(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return points, nil
}
