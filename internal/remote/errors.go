// Package remote provides the HTTP client for the authoritative
// lawdesk backend: per-table row CRUD, object storage for document
// blobs, and a websocket change-notification subscription. Requests
// retry transient failures with exponential backoff; responses are
// classified into sentinel errors the sync engine branches on.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for response classification.
// Use errors.Is(err, remote.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("remote: bad request")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
	ErrNotFound     = errors.New("remote: not found")
	ErrConflict     = errors.New("remote: conflict")
	ErrThrottled    = errors.New("remote: throttled")
	ErrServerError  = errors.New("remote: server error")

	// ErrTableMissing indicates the backend schema is not provisioned:
	// a required relation does not exist. The orchestrator aborts the
	// cycle before push when it sees this.
	ErrTableMissing = errors.New("remote: table missing")
)

// pgUndefinedTable is the Postgres error code surfaced by the REST
// layer when a query names a relation that does not exist.
const pgUndefinedTable = "42P01"

// APIError wraps a sentinel with the HTTP status, backend error code,
// and message body for debugging and operator guidance.
type APIError struct {
	StatusCode int
	Code       string // backend error code, e.g. "42P01"
	Message    string
	Table      string // set for table-scoped requests
	Err        error  // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("remote: HTTP %d on %s: %s", e.StatusCode, e.Table, e.Message)
	}
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// errorBody is the JSON error envelope the backend returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}
		return nil
	}
}

// classifyBody upgrades a sentinel using the backend error envelope.
// A bad-request or not-found response whose code names an undefined
// relation means the schema is not provisioned, which is a distinct,
// cycle-aborting condition.
func classifyBody(sentinel error, body []byte) (error, errorBody) {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	if eb.Code == pgUndefinedTable {
		return ErrTableMissing, eb
	}
	// Older backend versions report the condition only in prose.
	if strings.Contains(eb.Message, "relation") && strings.Contains(eb.Message, "does not exist") {
		return ErrTableMissing, eb
	}
	return sentinel, eb
}

// isRetryable reports whether the given HTTP status code should be
// retried with backoff.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
