package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNegative = errors.New("value must not be negative")

func rejectNegative(ev *Event[int], _ *Stream[int]) {
	if ev.Value() < 0 {
		ev.Error(errNegative)
	}
}

func TestStream_WalksReplaceStagesInOrder(t *testing.T) {
	s := New(1)
	var seen []Stage
	s.On(NewPredicate(Filter[int]{Action: Is(ActionNext)}), func(ev *Event[int], _ *Stream[int]) {
		seen = append(seen, ev.Stage())
	})

	ev := s.Next(2)

	require.NoError(t, ev.Err())
	assert.Equal(t, ReplaceStages(), seen)
	assert.Equal(t, ReplaceStages(), ev.CompletedStages())
	assert.True(t, ev.Committed())
	assert.True(t, ev.IsStopped())
	assert.Equal(t, 2, s.Value())
}

func TestStream_CommitHappensAtCommitStage(t *testing.T) {
	s := New(1)
	observed := map[Stage]int{}
	for _, stage := range []Stage{StagePrecommit, StageCommit, StageComplete} {
		s.OnStage(ActionNext, stage, func(ev *Event[int], st *Stream[int]) {
			observed[ev.Stage()] = st.Value()
		})
	}

	s.Next(2)

	assert.Equal(t, 1, observed[StagePrecommit])
	assert.Equal(t, 1, observed[StageCommit], "COMMIT handlers run before the value is applied")
	assert.Equal(t, 2, observed[StageComplete])
}

func TestStream_ValidationErrorPreventsCommit(t *testing.T) {
	s := New(10)
	rec := observe[int](t, s)
	s.OnStage(ActionNext, StageValidate, rejectNegative)

	ev := s.Next(-5)

	assert.Equal(t, 10, s.Value())
	assert.Equal(t, []int{10}, rec.Values())
	require.Len(t, rec.Errors(), 1)
	assert.True(t, IsStageValidationError(rec.Errors()[0]))
	assert.ErrorIs(t, rec.Errors()[0], errNegative)

	assert.True(t, ev.IsErrored())
	assert.False(t, ev.Committed())
	var se *StreamError
	require.ErrorAs(t, ev.Err(), &se)
	assert.Equal(t, StageValidate, se.Stage)
	assert.Equal(t, ActionNext, se.Action)
	assert.Equal(t, []Stage{StageInitial, StageFilter}, ev.CompletedStages())

	// The error channel does not terminate the value channel.
	s.Next(7)
	assert.Equal(t, []int{10, 7}, rec.Values())
	assert.Equal(t, 0, rec.Completed())
}

func TestStream_ErrorSkipsRemainingHandlers(t *testing.T) {
	s := New(0)
	calls := 0
	s.OnStage(ActionNext, StageValidate, rejectNegative)
	s.OnStage(ActionNext, StageValidate, func(*Event[int], *Stream[int]) { calls++ })
	s.OnStage(ActionNext, StagePrecommit, func(*Event[int], *Stream[int]) { calls++ })

	s.Next(-1)
	assert.Equal(t, 0, calls)

	s.Next(1)
	assert.Equal(t, 2, calls)
}

func TestStream_NextDoesNotSkipHandlersAtSameStage(t *testing.T) {
	s := New(0)
	var second int
	s.OnStage(ActionNext, StageFilter, func(ev *Event[int], _ *Stream[int]) {
		ev.Next(ev.Value() * 2)
	})
	s.OnStage(ActionNext, StageFilter, func(ev *Event[int], _ *Stream[int]) {
		second = ev.Value()
	})

	s.Next(21)

	assert.Equal(t, 42, second)
	assert.Equal(t, 42, s.Value())
}

func TestStream_CompleteBeforeCommitStopsWithoutCommit(t *testing.T) {
	s := New(1)
	rec := observe[int](t, s)
	s.OnStage(ActionNext, StagePrecommit, func(ev *Event[int], _ *Stream[int]) {
		ev.Complete()
	})

	ev := s.Next(2)

	assert.Equal(t, 1, s.Value())
	assert.True(t, ev.IsStopped())
	assert.False(t, ev.IsErrored())
	assert.False(t, ev.Committed())
	assert.NoError(t, ev.Err())
	assert.Equal(t, []Stage{StageInitial, StageFilter, StageValidate}, ev.CompletedStages())
	assert.Empty(t, rec.Errors())
}

func TestStream_HandlerPanicBecomesEventError(t *testing.T) {
	s := New(1, WithLogger[int](slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	rec := observe[int](t, s)
	s.OnStage(ActionNext, StageValidate, func(*Event[int], *Stream[int]) {
		panic("boom")
	})

	ev := s.Next(2)

	assert.Equal(t, 1, s.Value())
	assert.True(t, ev.IsErrored())
	require.Len(t, rec.Errors(), 1)
	assert.True(t, IsHandlerPanicError(rec.Errors()[0]))
	assert.Contains(t, rec.Errors()[0].Error(), "boom")

	// The stream keeps working after a panic.
	s.OnStage(ActionNext, StageInitial, func(ev *Event[int], _ *Stream[int]) { ev.Complete() })
	s.Next(3)
	assert.Equal(t, 1, s.Value())
}

func TestStream_ReentrantSendIsQueued(t *testing.T) {
	s := New(0)
	var order []string
	var innerStoppedDuringOuter bool

	s.OnStage(ActionNext, StagePrecommit, func(ev *Event[int], st *Stream[int]) {
		if ev.Value() == 1 {
			inner := st.Next(2)
			innerStoppedDuringOuter = inner.IsStopped()
		}
		order = append(order, fmt.Sprintf("precommit-%d", ev.Value()))
	})
	s.OnStage(ActionNext, StageComplete, func(ev *Event[int], _ *Stream[int]) {
		order = append(order, fmt.Sprintf("complete-%d", ev.Value()))
	})

	s.Next(1)

	assert.False(t, innerStoppedDuringOuter, "inner event must not run nested inside the outer one")
	assert.Equal(t, []string{"precommit-1", "complete-1", "precommit-2", "complete-2"}, order)
	assert.Equal(t, 2, s.Value())
}

func TestStream_DeepReentrantChainDoesNotGrowStack(t *testing.T) {
	s := New(0)
	const target = 20000
	s.OnStage(ActionNext, StageComplete, func(ev *Event[int], st *Stream[int]) {
		if ev.Value() < target {
			st.Next(ev.Value() + 1)
		}
	})

	s.Next(1)

	assert.Equal(t, target, s.Value())
}

func TestStream_SubscriberSendIsQueued(t *testing.T) {
	s := New(0)
	var seen []int
	_, err := s.SubscribeFunc(func(v int) {
		seen = append(seen, v)
		if v == 1 {
			s.Next(2)
		}
	}, nil, nil)
	require.NoError(t, err)

	s.Next(1)

	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestStream_CustomActions(t *testing.T) {
	s := New(2)
	s.AddAction("double", []Stage{StageInitial, StageCommit}, func(current, factor int) int {
		return current * factor
	})
	s.AddAction("touch", []Stage{StageInitial}, nil)

	ev := s.Send("double", 3)
	assert.Equal(t, 6, s.Value())
	assert.Equal(t, []Stage{StageInitial, StageCommit}, ev.CompletedStages())

	ev = s.Send("touch", 11)
	assert.True(t, ev.Committed(), "actions without COMMIT commit after their last stage")
	assert.Equal(t, 11, s.Value())

	ev = s.Send("unregistered", 4)
	assert.Equal(t, ReplaceStages(), ev.CompletedStages())
	assert.Equal(t, 4, s.Value())
	assert.Equal(t, ReplaceStages(), s.StagesFor("unregistered"))
}

func TestStream_DeferredValue(t *testing.T) {
	s := New(1)
	rec := observe[int](t, s)
	s.OnStage(ActionNext, StageValidate, func(ev *Event[int], _ *Stream[int]) {
		v := ev.Value()
		ev.Defer(func(context.Context) (int, error) { return v * 10, nil })
	})

	ev := s.Next(2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ev.Wait(ctx))
	assert.Equal(t, 20, s.Value())
	assert.Equal(t, ReplaceStages(), ev.CompletedStages())
	assert.Equal(t, []int{1, 20}, rec.Values())
}

func TestStream_DeferredErrorAbortsEvent(t *testing.T) {
	s := New(1)
	rec := observe[int](t, s)
	s.OnStage(ActionNext, StageFilter, func(ev *Event[int], _ *Stream[int]) {
		ev.Defer(func(context.Context) (int, error) { return 0, errNegative })
	})

	ev := s.Next(2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := ev.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errNegative)
	assert.Equal(t, 1, s.Value())
	require.Len(t, rec.Errors(), 1)
	assert.True(t, IsStageValidationError(rec.Errors()[0]))
}

func TestStream_OtherEventsInterleaveWithDeferred(t *testing.T) {
	s := New(0)
	release := make(chan struct{})
	s.OnStage(ActionNext, StageValidate, func(ev *Event[int], _ *Stream[int]) {
		if ev.Value() != 100 {
			return
		}
		ev.Defer(func(context.Context) (int, error) {
			<-release
			return 100, nil
		})
	})

	slow := s.Next(100)
	fast := s.Next(5)

	assert.True(t, fast.Committed())
	assert.Equal(t, 5, s.Value(), "an unrelated event commits while the deferred one waits")
	assert.False(t, slow.IsStopped())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, slow.Wait(ctx))
	assert.Equal(t, 100, s.Value())
}

func TestStream_FilterOption(t *testing.T) {
	s := New(0, WithFilter(func(candidate, _ int) (int, error) {
		if candidate > 100 {
			return 0, errors.New("too large")
		}
		if candidate < 0 {
			return 0, nil
		}
		return candidate, nil
	}))
	rec := observe[int](t, s)

	s.Next(-4)
	assert.Equal(t, 0, s.Value(), "filter rewrites negatives to zero")

	s.Next(500)
	assert.Equal(t, 0, s.Value(), "filter vetoes large values")
	require.Len(t, rec.Errors(), 1)

	s.Next(42)
	assert.Equal(t, 42, s.Value())
}

func TestStream_FinalizeOption(t *testing.T) {
	var finalized []int
	s := New(0, WithFinalize(func(ev *Event[int], _ *Stream[int]) {
		assert.Equal(t, StagePrecommit, ev.Stage())
		finalized = append(finalized, ev.Value())
	}))

	s.Next(1)
	s.Send("custom", 2)

	assert.Equal(t, []int{1, 2}, finalized)
}

func TestStream_RemoveHandler(t *testing.T) {
	s := New(0)
	calls := 0
	off := s.OnStage(ActionNext, StageCommit, func(*Event[int], *Stream[int]) { calls++ })

	s.Next(1)
	off()
	s.Next(2)
	off()

	assert.Equal(t, 1, calls)
}

func TestStream_CompleteRejectsMutationAndSubscription(t *testing.T) {
	s := New(1)
	rec := observe[int](t, s)

	s.Complete()
	s.Complete()

	assert.Equal(t, 1, rec.Completed())
	assert.True(t, s.IsComplete())

	_, err := s.Subscribe(Observer[int]{})
	require.Error(t, err)
	assert.True(t, IsSubscribeAfterCompleteError(err))

	ev := s.Next(2)
	assert.True(t, ev.IsErrored())
	assert.True(t, IsStreamCompleteError(ev.Err()))
	assert.Equal(t, 1, s.Value())
	assert.Equal(t, []int{1}, rec.Values())
}

func TestStream_Unsubscribe(t *testing.T) {
	s := New(0)
	var seen []int
	sub, err := s.SubscribeFunc(func(v int) { seen = append(seen, v) }, nil, nil)
	require.NoError(t, err)

	s.Next(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Next(2)

	assert.True(t, sub.Closed())
	assert.Equal(t, []int{0, 1}, seen)
}

func TestStream_EventSequenceFollowsClock(t *testing.T) {
	clock := NewClockAt(100)
	a := New(0, WithClock[int](clock))
	b := New(0, WithClock[int](clock))

	e1 := a.Next(1)
	e2 := b.Next(1)
	e3 := a.Next(2)

	assert.Equal(t, int64(101), e1.Seq())
	assert.Equal(t, int64(102), e2.Seq())
	assert.Equal(t, int64(103), e3.Seq())
}

func TestStream_DebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := New(0,
		WithName[int]("counter"),
		WithDebug[int](true),
		WithLogger[int](logger),
	)
	s.OnStage(ActionNext, StageValidate, rejectNegative)

	s.Next(1)
	s.Next(-1)

	out := buf.String()
	assert.Contains(t, out, "stream=counter")
	assert.Contains(t, out, "event entered stage")
	assert.Contains(t, out, "event committed")
	assert.Contains(t, out, "routing error to error channel")
}

func TestSubject_NextCommitsDirectly(t *testing.T) {
	s := NewSubject("a")
	rec := observe[string](t, s)

	require.NoError(t, s.Next("b"))
	assert.Equal(t, "b", s.Value())
	assert.Equal(t, []string{"a", "b"}, rec.Values())

	s.Complete()
	err := s.Next("c")
	require.Error(t, err)
	assert.True(t, IsStreamCompleteError(err))
}
