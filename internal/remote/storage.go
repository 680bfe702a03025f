package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// UploadObject writes blob content to the given storage path with
// overwrite semantics, so re-uploading after a retried push is
// harmless.
func (c *Client) UploadObject(ctx context.Context, path, contentType string, data []byte) error {
	headers := http.Header{}
	headers.Set("x-upsert", "true")
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	} else {
		headers.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.Do(ctx, http.MethodPost, storagePrefix+c.bucket+"/"+escapePath(path), headers, data)
	if err != nil {
		return fmt.Errorf("remote: upload %s: %w", path, err)
	}
	resp.Body.Close()

	return nil
}

// DownloadObject fetches blob content from the given storage path.
func (c *Client) DownloadObject(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, storagePrefix+c.bucket+"/"+escapePath(path), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: download %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: download %s: reading body: %w", path, err)
	}

	return data, nil
}

// RemoveObject deletes blob content at the given storage path.
// Removing an already-absent object returns ErrNotFound; callers in
// the push delete phase treat that as success.
func (c *Client) RemoveObject(ctx context.Context, path string) error {
	resp, err := c.Do(ctx, http.MethodDelete, storagePrefix+c.bucket+"/"+escapePath(path), nil, nil)
	if err != nil {
		return fmt.Errorf("remote: remove %s: %w", path, err)
	}
	resp.Body.Close()

	return nil
}
