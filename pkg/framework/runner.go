package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// Runner runs Runnables together. When one of them stops with an error,
// the others are canceled.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc

	count  int
	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a runner with a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error),
		exitCh: make(chan struct{}),
	}
}

// Context is canceled on stop.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// Stop cancels all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// HandleSignals stops on CtrlC or SIGTERM. A second signal forces Wait
// to return.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns Runnables.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.count)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.count++
		go func(runnable Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runnable.Run(r.ctx)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = &RunError{Name: name, Err: err}
			} else {
				err = nil
			}
			r.errCh <- err
		}(runnable, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates errors.
func (r *Runner) Wait() error {
	defer r.cancel()
	var errs AggregatedError
	for n := 0; n < r.count; n++ {
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			if err != nil {
				glog.Errorf("%v", err)
				errs.Add(err)
				r.cancel()
			}
		}
	}
	return errs.Aggregate()
}

// Run is a shortcut for Go and Wait.
func (r *Runner) Run(runnables ...Runnable) error {
	return r.Go(runnables...).Wait()
}

// CloseOnDone wraps a Runnable blocked on I/O: closer is closed once ctx is
// done or the Runnable returns, which unblocks pending reads. Errors caused
// by the close after ctx is done are reported as ctx.Err().
func CloseOnDone(closer io.Closer, runnable Runnable) Runnable {
	return RunFunc(func(parent context.Context) error {
		ctx, cancel := context.WithCancel(parent)
		defer cancel()
		go func() {
			<-ctx.Done()
			closer.Close()
		}()
		err := runnable.Run(ctx)
		if parentErr := parent.Err(); parentErr != nil {
			return parentErr
		}
		return err
	})
}
