package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/cinesearch/pkg/fn"
)

var errUnavailable = errors.New("qdrant: unavailable")

func failing(context.Context) error { return errUnavailable }
func healthy(context.Context) error { return nil }

// clockedBreaker returns a breaker on a fake clock and the func advancing it.
func clockedBreaker(opts BreakerOpts) (*Breaker, func(time.Duration)) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(opts)
	b.now = func() time.Time { return now }
	return b, func(d time.Duration) { now = now.Add(d) }
}

func TestBreakerLifecycle(t *testing.T) {
	tests := []struct {
		name  string
		steps []func(context.Context) error
		wait  time.Duration
		after func(context.Context) error
		want  State
	}{
		{name: "fresh", want: StateClosed},
		{name: "below threshold", steps: []func(context.Context) error{failing, failing}, want: StateClosed},
		{name: "success resets count", steps: []func(context.Context) error{failing, failing, healthy, failing, failing}, want: StateClosed},
		{name: "trips at threshold", steps: []func(context.Context) error{failing, failing, failing}, want: StateOpen},
		{name: "half-open after timeout", steps: []func(context.Context) error{failing, failing, failing}, wait: 6 * time.Second, want: StateHalfOpen},
		{name: "half-open success closes", steps: []func(context.Context) error{failing, failing, failing}, wait: 6 * time.Second, after: healthy, want: StateClosed},
		{name: "half-open failure reopens", steps: []func(context.Context) error{failing, failing, failing}, wait: 6 * time.Second, after: failing, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b, advance := clockedBreaker(BreakerOpts{FailThreshold: 3, Timeout: 5 * time.Second, HalfOpenMax: 1})
			for _, step := range tt.steps {
				_ = b.Call(ctx, step)
			}
			advance(tt.wait)
			if tt.after != nil {
				_ = b.Call(ctx, tt.after)
			}
			if got := b.State(); got != tt.want {
				t.Fatalf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, _ := clockedBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()
	if err := b.Call(ctx, failing); !errors.Is(err, errUnavailable) {
		t.Fatalf("first failure should pass through, got %v", err)
	}
	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	stage := BreakerStage(b, func(ctx context.Context, in int) fn.Result[int] {
		return fn.Err[int](errors.New("fail"))
	})

	_ = stage(ctx, 1)
	_ = stage(ctx, 2)

	r := stage(ctx, 3)
	if r.IsOk() {
		t.Fatal("expected error from tripped breaker")
	}
	_, err := r.Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestDoReturnsValue(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	v, err := Do(ctx, b, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
	_, _ = Do(ctx, b, func(context.Context) (string, error) { return "", errors.New("down") })
	if _, err := Do(ctx, b, func(context.Context) (string, error) { return "unreachable", nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerIsFailure(t *testing.T) {
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Timeout:       time.Minute,
		IsFailure:     func(err error) bool { return !errors.Is(err, context.Canceled) },
	})
	ctx := context.Background()
	_ = b.Call(ctx, func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Fatalf("canceled calls should not trip, got %v", b.State())
	}
	_ = b.Call(ctx, func(context.Context) error { return errors.New("real") })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
}

func TestBreakerOnStateChange(t *testing.T) {
	changes := make(chan [2]State, 4)
	b := NewBreaker(BreakerOpts{
		FailThreshold: 1,
		Timeout:       time.Minute,
		OnStateChange: func(from, to State) { changes <- [2]State{from, to} },
	})
	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("x") })

	select {
	case c := <-changes:
		if c[0] != StateClosed || c[1] != StateOpen {
			t.Fatalf("got %v -> %v", c[0], c[1])
		}
	case <-time.After(time.Second):
		t.Fatal("no state change reported")
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
