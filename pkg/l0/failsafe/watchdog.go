// Package failsafe detects communication silence.
package failsafe

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultTimeout is the silence allowed before the fail-safe trips.
const DefaultTimeout = time.Second

// Watchdog signals when it is not kicked within Timeout.
// It only signals; reacting to the expiration is up to the receiver
// of Expired.
type Watchdog struct {
	Timeout time.Duration

	kickCh    chan struct{}
	expiredCh chan struct{}
}

// New creates a Watchdog.
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{
		Timeout:   timeout,
		kickCh:    make(chan struct{}, 1),
		expiredCh: make(chan struct{}, 1),
	}
}

// Kick restarts the silence timer. It never blocks.
func (w *Watchdog) Kick() {
	select {
	case w.kickCh <- struct{}{}:
	default:
	}
}

// Expired returns the chan signaled once per expiration.
func (w *Watchdog) Expired() <-chan struct{} {
	return w.expiredCh
}

// Run implements Runnable.
func (w *Watchdog) Run(ctx context.Context) error {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.kickCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			glog.V(2).Infof("no traffic for %v", timeout)
			select {
			case w.expiredCh <- struct{}{}:
			default:
			}
			timer.Reset(timeout)
		}
	}
}
