package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(waitDone), NamedRun("second", RunFunc(waitDone)))
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestRunnerCancelsOnError(t *testing.T) {
	failure := errors.New("stream closed")
	var canceled atomic.Bool
	err := NewRunner().Run(
		NamedRun("controller", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		RunFunc(func(ctx context.Context) error {
			err := waitDone(ctx)
			canceled.Store(true)
			return err
		}),
	)
	require.Error(t, err)
	require.True(t, canceled.Load())
	require.True(t, errors.Is(err, failure))
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	require.Equal(t, "controller", runErr.Name)
	require.Equal(t, "controller: stream closed", err.Error())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	e1, e2 := errors.New("e1"), errors.New("e2")
	err := errs.Add(e1, nil, e2).Aggregate()
	require.Error(t, err)
	require.Equal(t, "2 errors: e1; e2", err.Error())
	require.True(t, errors.Is(err, e2))
}

type closer struct {
	closed atomic.Bool
}

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

func TestCloseOnDone(t *testing.T) {
	c := &closer{}
	err := CloseOnDone(c, RunFunc(func(ctx context.Context) error {
		return nil
	})).Run(context.TODO())
	require.NoError(t, err)
	require.Eventually(t, c.closed.Load, time.Second, time.Millisecond)

	c = &closer{}
	ctx, cancel := context.WithCancel(context.TODO())
	done := make(chan error, 1)
	go func() {
		done <- CloseOnDone(c, RunFunc(waitDone)).Run(ctx)
	}()
	cancel()
	require.Equal(t, context.Canceled, <-done)
	require.Eventually(t, c.closed.Load, time.Second, time.Millisecond)
}
