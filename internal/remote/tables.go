package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// tableError tags an *APIError with the table it came from so the
// orchestrator can report the failing table by name.
func tableError(table string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Table == "" {
		apiErr.Table = table
	}
	return fmt.Errorf("table %s: %w", table, err)
}

// SelectRows fetches every row of the given table belonging to
// ownerID, as raw JSON for the caller to decode defensively.
func (c *Client) SelectRows(ctx context.Context, table, ownerID string) ([]json.RawMessage, error) {
	path := restPrefix + url.PathEscape(table) +
		"?select=*&owner_id=eq." + url.QueryEscape(ownerID)

	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, tableError(table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tableError(table, fmt.Errorf("remote: reading response: %w", err))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, tableError(table, fmt.Errorf("remote: decoding row array: %w", err))
	}

	return rows, nil
}

// UpsertRows writes a batch of rows to the table with merge-on-id
// semantics: existing rows are overwritten, new rows inserted. A nil
// or empty batch is a no-op.
func (c *Client) UpsertRows(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return tableError(table, fmt.Errorf("remote: encoding batch: %w", err))
	}

	headers := http.Header{}
	headers.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.Do(ctx, http.MethodPost, restPrefix+url.PathEscape(table), headers, body)
	if err != nil {
		return tableError(table, err)
	}
	resp.Body.Close()

	return nil
}

// DeleteRows deletes the given ids from the table, scoped to ownerID.
// Deleting ids that are already absent succeeds: the backend filters
// simply match zero rows. A nil or empty id list is a no-op.
func (c *Client) DeleteRows(ctx context.Context, table, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	path := restPrefix + url.PathEscape(table) +
		"?owner_id=eq." + url.QueryEscape(ownerID) +
		"&id=in.(" + url.QueryEscape(strings.Join(ids, ",")) + ")"

	resp, err := c.Do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return tableError(table, err)
	}
	resp.Body.Close()

	return nil
}

// Probe verifies that every required table exists by issuing a
// one-row GET against each. GET rather than HEAD: the undefined-table
// error code travels in the response body, which HEAD omits. The
// first missing relation is reported via ErrTableMissing with the
// table name attached; the orchestrator maps that to the
// uninitialized status and never attempts a push.
func (c *Client) Probe(ctx context.Context, tables []string) error {
	for _, table := range tables {
		path := restPrefix + url.PathEscape(table) + "?select=id&limit=1"

		resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			return tableError(table, err)
		}
		resp.Body.Close()
	}

	return nil
}
