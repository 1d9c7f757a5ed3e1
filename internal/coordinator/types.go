// Package coordinator polls the nobreak device on a fixed cadence and
// publishes each outcome to registered observers.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

var (
	// ErrFetchInFlight is returned by Refresh when another fetch is outstanding.
	ErrFetchInFlight = errors.New("coordinator: fetch already in flight")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)

// Fetcher retrieves one status snapshot. Implementations must return promptly
// once ctx is done; the coordinator relies on that to bound each fetch.
type Fetcher interface {
	FetchStatus(ctx context.Context) (nobreak.Status, error)
}

// Update is the outcome of one poll. Exactly one of Status and Err is set.
type Update struct {
	Status   *nobreak.Status `json:"status,omitempty"`
	Err      error           `json:"-"`
	At       time.Time       `json:"at"`
	Duration time.Duration   `json:"duration_ns"`
}

// OK reports whether the poll produced a snapshot.
func (u Update) OK() bool { return u.Err == nil && u.Status != nil }

// Observer receives every poll outcome. OnUpdate is called from the fetch
// goroutine; observers are invoked one at a time in subscription order.
type Observer interface {
	OnUpdate(u Update)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(u Update)

// OnUpdate calls f(u).
func (f ObserverFunc) OnUpdate(u Update) { f(u) }

// Stats summarises polling health.
type Stats struct {
	Polls               int64     `json:"polls"`
	Failures            int64     `json:"failures"`
	SkippedTicks        int64     `json:"skipped_ticks"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	Fetching            bool      `json:"fetching"`
	Observers           int       `json:"observers"`
}
