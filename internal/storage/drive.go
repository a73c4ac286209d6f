package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	driveAPIBase    = "https://www.googleapis.com/drive/v3"
	driveUploadBase = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType   = "application/vnd.google-apps.folder"
	shortcutMimeType = "application/vnd.google-apps.shortcut"
)

// DriveFile is the result of an upload: the file id plus the browser
// link used in notes and emails.
type DriveFile struct {
	ID             string `json:"id"`
	WebViewLink    string `json:"webViewLink"`
	WebContentLink string `json:"webContentLink"`
}

// DriveClient talks to the Drive v3 REST API. All calls pass
// supportsAllDrives so shared-drive folders work the same as personal
// ones.
type DriveClient struct {
	httpClient *resty.Client
	apiBase    string
	uploadBase string
	logger     *zap.Logger
}

func NewDriveClient(accessToken string, logger *zap.Logger) *DriveClient {
	client := resty.New().
		SetTimeout(60 * time.Second).
		SetAuthToken(accessToken)

	return &DriveClient{
		httpClient: client,
		apiBase:    driveAPIBase,
		uploadBase: driveUploadBase,
		logger:     logger,
	}
}

// GetOrCreateFolder returns the id of a folder named name under parentID,
// creating it when no match exists.
func (c *DriveClient) GetOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		escapeDriveQuery(name), parentID, folderMimeType)

	var listResult struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":                         query,
			"spaces":                    "drive",
			"fields":                    "files(id, name)",
			"supportsAllDrives":         "true",
			"includeItemsFromAllDrives": "true",
		}).
		SetResult(&listResult).
		Get(c.apiBase + "/files")
	if err != nil {
		return "", fmt.Errorf("drive folder search %q: %w", name, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("drive folder search %q: status %d", name, resp.StatusCode())
	}
	if len(listResult.Files) > 0 {
		return listResult.Files[0].ID, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err = c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":            "id",
			"supportsAllDrives": "true",
		}).
		SetBody(map[string]any{
			"name":     name,
			"mimeType": folderMimeType,
			"parents":  []string{parentID},
		}).
		SetResult(&created).
		Post(c.apiBase + "/files")
	if err != nil {
		return "", fmt.Errorf("drive folder create %q: %w", name, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("drive folder create %q: status %d", name, resp.StatusCode())
	}

	c.logger.Info("Created Drive folder",
		zap.String("folder_name", name),
		zap.String("folder_id", created.ID),
	)
	return created.ID, nil
}

// Upload stores content as filename inside folderID and makes the file
// readable by anyone with the link. A permission failure is logged and
// tolerated since the upload itself succeeded.
func (c *DriveClient) Upload(ctx context.Context, folderID, filename string, content []byte, mimeType string) (*DriveFile, error) {
	metadata, err := json.Marshal(map[string]any{
		"name":    filename,
		"parents": []string{folderID},
	})
	if err != nil {
		return nil, err
	}

	var file DriveFile
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"uploadType":        "multipart",
			"fields":            "id, webViewLink, webContentLink",
			"supportsAllDrives": "true",
		}).
		SetMultipartField("metadata", "", "application/json", strings.NewReader(string(metadata))).
		SetMultipartField("file", filename, mimeType, strings.NewReader(string(content))).
		SetResult(&file).
		Post(c.uploadBase + "/files")
	if err != nil {
		return nil, fmt.Errorf("drive upload %q: %w", filename, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("drive upload %q: status %d", filename, resp.StatusCode())
	}

	if err := c.shareWithAnyone(ctx, file.ID); err != nil {
		c.logger.Warn("Could not set public permission on Drive file",
			zap.String("file_id", file.ID),
			zap.Error(err),
		)
	}

	c.logger.Info("Uploaded certificate to Drive",
		zap.String("file_name", filename),
		zap.String("file_id", file.ID),
	)
	return &file, nil
}

func (c *DriveClient) shareWithAnyone(ctx context.Context, fileID string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("supportsAllDrives", "true").
		SetBody(map[string]string{
			"type": "anyone",
			"role": "reader",
		}).
		Post(fmt.Sprintf("%s/files/%s/permissions", c.apiBase, fileID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d", resp.StatusCode())
	}
	return nil
}

// CreateShortcut places a shortcut to fileID into parentID. Shortcut
// failures are reported to the caller but do not invalidate the upload.
func (c *DriveClient) CreateShortcut(ctx context.Context, fileID, name, parentID string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":            "id",
			"supportsAllDrives": "true",
		}).
		SetBody(map[string]any{
			"name":            name,
			"mimeType":        shortcutMimeType,
			"shortcutDetails": map[string]string{"targetId": fileID},
			"parents":         []string{parentID},
		}).
		SetResult(&created).
		Post(c.apiBase + "/files")
	if err != nil {
		return "", fmt.Errorf("drive shortcut %q: %w", name, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("drive shortcut %q: status %d", name, resp.StatusCode())
	}
	return created.ID, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
