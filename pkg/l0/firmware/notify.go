package firmware

import (
	"context"
	"sync/atomic"

	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

// EventKind identifies what happened.
type EventKind int

// Event kinds.
const (
	EventFrameAccepted EventKind = iota
	EventChecksumError
	EventSyncError
	EventFailSafe
	EventRecovered
	EventResynced
)

var eventKindNames = map[EventKind]string{
	EventFrameAccepted: "accepted",
	EventChecksumError: "checksum-error",
	EventSyncError:     "sync-error",
	EventFailSafe:      "fail-safe",
	EventRecovered:     "recovered",
	EventResynced:      "resynced",
}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is reported to the Notifier from the main loop.
type Event struct {
	Kind EventKind
	// Ack is the reply sent for a frame, if any.
	Ack link.Ack
	// Command is set for EventFrameAccepted.
	Command link.Command
	Status  Status
}

// Stats counts processed frames and fail-safe activity.
type Stats struct {
	Accepted       uint64
	ChecksumErrors uint64
	SyncErrors     uint64
	FailSafeTrips  uint64
	Resyncs        uint64
}

// Status is a snapshot of the controller.
type Status struct {
	State  link.State
	Failed bool
	Engine pwm.Snapshot
	Stats  Stats
}

type stats struct {
	accepted       atomic.Uint64
	checksumErrors atomic.Uint64
	syncErrors     atomic.Uint64
	failSafeTrips  atomic.Uint64
	resyncs        atomic.Uint64
}

func (s *stats) load() Stats {
	return Stats{
		Accepted:       s.accepted.Load(),
		ChecksumErrors: s.checksumErrors.Load(),
		SyncErrors:     s.syncErrors.Load(),
		FailSafeTrips:  s.failSafeTrips.Load(),
		Resyncs:        s.resyncs.Load(),
	}
}

// Notifier is called when something happened on the controller.
// It runs on the main loop and must not block for long.
type Notifier interface {
	Notify(context.Context, Event)
}

// NotifyFunc is func type of Notifier.
type NotifyFunc func(context.Context, Event)

// Notify implements Notifier.
func (f NotifyFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// NotifierMux dispatches events to multiple Notifiers.
type NotifierMux struct {
	Notifiers []Notifier
}

// Notify implements Notifier.
func (m *NotifierMux) Notify(ctx context.Context, ev Event) {
	for _, n := range m.Notifiers {
		n.Notify(ctx, ev)
	}
}

// Add adds more notifiers.
func (m *NotifierMux) Add(notifiers ...Notifier) {
	m.Notifiers = append(m.Notifiers, notifiers...)
}
