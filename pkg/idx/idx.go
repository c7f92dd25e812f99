// Package idx generates request identifiers for outbound API calls. IDs are
// ULIDs so log lines from one CLI run sort by the time each request started.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type RequestID string

// Zero is the empty request ID.
const Zero RequestID = ""

// ErrInvalid reports a malformed request ID.
var ErrInvalid = errors.New("idx: invalid request id")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a request ID stamped with the current UTC time.
func New() RequestID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a request ID stamped with t. IDs created within the same
// millisecond stay strictly increasing.
func NewAt(t time.Time) RequestID {
	mu.Lock()
	defer mu.Unlock()

	return RequestID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates an incoming ID, e.g. one echoed back by the backend.
func Parse(s string) (RequestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}

	return RequestID(s), nil
}

func (id RequestID) IsZero() bool   { return id == Zero }
func (id RequestID) String() string { return string(id) }

// Time extracts the embedded timestamp, or the zero time for invalid IDs.
func (id RequestID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
