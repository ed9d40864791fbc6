package sakan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	// MaxUploadSize is the largest accepted image, matching the gateway's
	// own limit so oversized files fail before leaving the device.
	MaxUploadSize = 5 * 1024 * 1024

	uploadPath = "/api/v1/storage/upload"
)

// UploadResult describes a stored file.
type UploadResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// UploadImage stores an image (listing photos, chat attachments) and returns
// its public URL. Content type must be image/* and size at most
// MaxUploadSize; both are checked locally before any bytes are sent.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (*UploadResult, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, validationError("only image uploads are allowed")
	}

	// Read one byte past the limit to detect oversize without buffering
	// arbitrarily large input.
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, validationError("image exceeds 5MB limit")
	}
	if len(data) == 0 {
		return nil, validationError("image is empty")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)},
		"Content-Type":        {contentType},
	})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+uploadPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[Result](body)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, resultError(result)
	}

	var upload UploadResult
	if err := result.Decode(&upload); err != nil {
		return nil, err
	}
	return &upload, nil
}
