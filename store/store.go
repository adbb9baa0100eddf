// Package store records admission decisions for reporting.
// It never holds bucket state; buckets live in the filter.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// Event is one recorded admission decision.
type Event struct {
	Filter   string
	Admitted bool
	Scope    scopefence.Scope
	Consumer string
	Provider string
	At       time.Time
}

// EventFromDecision builds the event for a filter decision.
func EventFromDecision(filter string, d scopefence.Decision, at time.Time) Event {
	return Event{
		Filter:   filter,
		Admitted: d.Admitted,
		Scope:    d.Scope,
		Consumer: d.Identity.Consumer,
		Provider: d.Identity.Provider,
		At:       at,
	}
}

// Counts are the cumulative totals of one filter.
type Counts struct {
	Admitted        int64            `json:"admitted"`
	Rejected        int64            `json:"rejected"`
	RejectedByScope map[string]int64 `json:"rejected_by_scope"`
}

// Store defines the interface for decision statistics storage
type Store interface {
	Record(ctx context.Context, ev Event) error
	Counts(ctx context.Context, filter string) (Counts, error)
	Clear(ctx context.Context) error
}

// Recorder adapts a Store to scopefence.Observer.
// Recording is best effort: failures are logged and dropped, and each
// write is bounded by Timeout.
type Recorder struct {
	Store   Store
	Timeout time.Duration
	Logger  *slog.Logger

	// TrackConsumer, when set, picks the consumers recorded under their
	// own id. Others are recorded without a consumer.
	TrackConsumer func(consumer string) bool
}

// NewRecorder creates a Recorder with a 100ms timeout.
func NewRecorder(s Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{Store: s, Timeout: 100 * time.Millisecond, Logger: logger}
}

// ObserveDecision records d.
func (r *Recorder) ObserveDecision(ctx context.Context, filter string, d scopefence.Decision) {
	ctx = context.WithoutCancel(ctx)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ev := EventFromDecision(filter, d, time.Now())
	if r.TrackConsumer != nil && ev.Consumer != "" && !r.TrackConsumer(ev.Consumer) {
		ev.Consumer = ""
	}
	if err := r.Store.Record(ctx, ev); err != nil {
		r.Logger.Warn("failed to record decision", "filter", filter, "error", err)
	}
}
