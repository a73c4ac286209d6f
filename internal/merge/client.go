// Package merge renders certificates by posting merge fields to the
// WebMerge document endpoint and returning the produced PDF.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"provident-certs/internal/models"
)

var pdfMagic = []byte("%PDF")

// Client posts field maps to a WebMerge document URL configured with
// download=1, so the response body is the rendered PDF itself.
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewClient(url string, logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Render merges the field map into the certificate template and returns
// the PDF bytes.
func (c *Client) Render(ctx context.Context, fields models.FieldMap) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(fields).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("webmerge request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("webmerge returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	body := resp.Body()
	if !bytes.HasPrefix(body, pdfMagic) {
		return nil, fmt.Errorf("webmerge response is not a PDF (%d bytes)", len(body))
	}

	c.logger.Info("Rendered certificate PDF",
		zap.Int("size_bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
