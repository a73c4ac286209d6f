// Package storage pushes rendered certificates to Google Cloud Storage
// and Google Drive over their REST APIs.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// GCSClient uploads objects through the JSON API. The bucket is expected
// to allow public reads, so the returned URL works without a token.
type GCSClient struct {
	httpClient *resty.Client
	bucket     string
	baseURL    string
	logger     *zap.Logger
}

func NewGCSClient(bucket, accessToken string, logger *zap.Logger) *GCSClient {
	client := resty.New().
		SetTimeout(60 * time.Second).
		SetAuthToken(accessToken)

	return &GCSClient{
		httpClient: client,
		bucket:     bucket,
		baseURL:    "https://storage.googleapis.com",
		logger:     logger,
	}
}

// Upload stores content under objectName and returns the public URL.
func (c *GCSClient) Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetQueryParams(map[string]string{
			"uploadType": "media",
			"name":       objectName,
		}).
		SetBody(content).
		Post(fmt.Sprintf("%s/upload/storage/v1/b/%s/o", c.baseURL, c.bucket))
	if err != nil {
		return "", fmt.Errorf("gcs upload %s: %w", objectName, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gcs upload %s: status %d", objectName, resp.StatusCode())
	}

	publicURL := fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, url.PathEscape(objectName))
	c.logger.Info("Uploaded certificate to GCS",
		zap.String("bucket", c.bucket),
		zap.String("object", objectName),
	)
	return publicURL, nil
}
