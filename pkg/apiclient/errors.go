package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRefreshFailed matches any *RefreshError.
	ErrRefreshFailed = errors.New("apiclient: token refresh failed")

	// ErrNoRefreshToken is attached as the cause of a 401 that could not be
	// recovered because no refresh token was stored.
	ErrNoRefreshToken = errors.New("apiclient: no refresh token available")
)

// HTTPError is a non-2xx response surfaced to the caller.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int

	// Message is the backend's "message" (or "error") field, when present.
	Message string
	Body    []byte

	// Cause is set when the client tried and failed to recover, e.g. the
	// refresh error behind a 401.
	Cause error
}

func (e *HTTPError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

func (e *HTTPError) Unwrap() error { return e.Cause }

// IsStatus reports whether err is an *HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// IsUnauthorized reports whether err is a surfaced 401.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// RefreshError describes a failed call to the refresh endpoint. StatusCode
// is zero when no response was received.
type RefreshError struct {
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool { return target == ErrRefreshFailed }

func newHTTPError(req *Request, resp *Response) *HTTPError {
	return &HTTPError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		Message:    parseErrorMessage(resp.Body),
		Body:       resp.Body,
	}
}

// parseErrorMessage pulls a human-readable message out of the backend's error
// body. It understands {"message": "..."}, {"message": ["a", "b"]} and
// {"error": "..."}; anything else yields "".
func parseErrorMessage(body []byte) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	for _, raw := range []json.RawMessage{envelope.Message, envelope.Error} {
		if len(raw) == 0 {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}

		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}

	return ""
}
