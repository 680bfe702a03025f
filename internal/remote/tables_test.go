package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/clients", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "eq.owner1", r.URL.Query().Get("owner_id"))

		_, _ = w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)

	rows, err := c.SelectRows(context.Background(), "clients", "owner1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.JSONEq(t, `{"id":"a"}`, string(rows[0]))
}

func TestUpsertRows(t *testing.T) {
	t.Parallel()

	t.Run("sends merge-duplicates batch", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/rest/v1/cases", r.URL.Path)
			assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))

			body, _ := io.ReadAll(r.Body)
			var rows []map[string]any
			require.NoError(t, json.Unmarshal(body, &rows))
			assert.Len(t, rows, 2)

			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)

		err := c.UpsertRows(context.Background(), "cases", []any{
			map[string]string{"id": "c1"},
			map[string]string{"id": "c2"},
		})
		require.NoError(t, err)
	})

	t.Run("empty batch makes no request", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)

		require.NoError(t, c.UpsertRows(context.Background(), "cases", nil))
		assert.Zero(t, calls.Load())
	})
}

func TestDeleteRows(t *testing.T) {
	t.Parallel()

	t.Run("scopes by owner and id list", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "eq.owner1", r.URL.Query().Get("owner_id"))
			assert.Equal(t, "in.(a,b)", r.URL.Query().Get("id"))

			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)
		require.NoError(t, c.DeleteRows(context.Background(), "sessions", "owner1", []string{"a", "b"}))
	})

	t.Run("empty id list makes no request", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)
		require.NoError(t, c.DeleteRows(context.Background(), "sessions", "owner1", nil))
		assert.Zero(t, calls.Load())
	})
}

func TestProbeReportsMissingTable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/clients" {
			_, _ = w.Write([]byte(`[]`))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"42P01","message":"relation \"public.cases\" does not exist"}`))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)

	err := c.Probe(context.Background(), []string{"clients", "cases"})
	require.ErrorIs(t, err, ErrTableMissing)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "cases", apiErr.Table)
}

func TestStorageObjects(t *testing.T) {
	t.Parallel()

	t.Run("upload sets upsert and content type", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/storage/v1/object/documents/owner1/c1/d1.pdf", r.URL.Path)
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))

			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "blobdata", string(body))

			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)
		err := c.UploadObject(context.Background(), "owner1/c1/d1.pdf", "application/pdf", []byte("blobdata"))
		require.NoError(t, err)
	})

	t.Run("download returns content", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/storage/v1/object/documents/owner1/c1/d1.pdf", r.URL.Path)
			_, _ = w.Write([]byte("blobdata"))
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)
		data, err := c.DownloadObject(context.Background(), "owner1/c1/d1.pdf")
		require.NoError(t, err)
		assert.Equal(t, "blobdata", string(data))
	})

	t.Run("remove surfaces not found", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c, _ := testClient(t, srv)
		err := c.RemoveObject(context.Background(), "owner1/c1/gone.pdf")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
