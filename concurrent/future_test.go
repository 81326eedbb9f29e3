package concurrent

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFutureCompleteOnce(t *testing.T) {
	f := NewFuture()
	first := errors.New("first")
	f.Complete(first)
	f.Complete(errors.New("second"))
	require.ErrorIs(t, f.Wait(context.Background()), first)
}

func TestFutureWaitRespectsContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestCompletedAndFailed(t *testing.T) {
	require.NoError(t, Completed().Wait(context.Background()))

	want := errors.New("boom")
	require.ErrorIs(t, Failed(want).Wait(context.Background()), want)
}

func TestAllOfEmpty(t *testing.T) {
	require.NoError(t, AllOf().Wait(context.Background()))
}

func TestAllOfWaitsForEveryFuture(t *testing.T) {
	f1 := NewFuture()
	f2 := NewFuture()
	all := AllOf(f1, f2)

	f1.Complete(nil)
	select {
	case <-all.Done():
		t.Fatal("barrier resolved before every future completed")
	case <-time.After(10 * time.Millisecond):
	}

	f2.Complete(nil)
	require.NoError(t, all.Wait(context.Background()))
}

func TestAllOfAggregatesFailures(t *testing.T) {
	f1 := NewFuture()
	f2 := NewFuture()
	f3 := NewFuture()
	all := AllOf(f1, f2, f3)

	e1 := errors.New("one")
	e2 := errors.New("two")
	f1.Complete(e1)
	f2.Complete(nil)
	f3.Complete(e2)

	err := all.Wait(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
}
