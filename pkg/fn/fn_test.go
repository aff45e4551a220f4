package fn

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(3, nil); !r.IsOk() {
		t.Fatal("nil error should be ok")
	}
	if r := FromPair(3, errors.New("x")); r.IsOk() {
		t.Fatal("error should be err")
	}
}

func TestCollect(t *testing.T) {
	r := Collect([]Result[int]{Ok(1), Ok(2)})
	v, err := r.Unwrap()
	if err != nil || !reflect.DeepEqual(v, []int{1, 2}) {
		t.Fatalf("got %v, %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)}).Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
}

// --- Stages ---

func TestThen(t *testing.T) {
	toStr := MapStage(strconv.Itoa)
	double := FuncStage(func(_ context.Context, s string) (string, error) { return s + s, nil })
	v, err := Then(toStr, double)(context.Background(), 12).Unwrap()
	if err != nil || v != "1212" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := FuncStage(func(context.Context, int) (int, error) { return 0, errors.New("stop") })
	next := MapStage(func(int) int { called = true; return 0 })
	if r := Then(fail, next)(context.Background(), 1); r.IsOk() {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("second stage must not run after an error")
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	v, _ := TapStage(func(_ context.Context, n int) { seen = n })(context.Background(), 5).Unwrap()
	if v != 5 || seen != 5 {
		t.Fatalf("v=%d seen=%d", v, seen)
	}
}

func TestTracedStage(t *testing.T) {
	stage := TracedStage("test.stage", FuncStage(func(_ context.Context, n int) (int, error) {
		if n < 0 {
			return 0, errors.New("negative")
		}
		return n + 1, nil
	}))
	if v, err := stage(context.Background(), 1).Unwrap(); err != nil || v != 2 {
		t.Fatalf("got %d, %v", v, err)
	}
	if stage(context.Background(), -1).IsOk() {
		t.Fatal("expected error to pass through")
	}
}

// --- Retry ---

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](errors.New("transient"))
		}
		return Ok("done")
	})
	if v, err := r.Unwrap(); err != nil || v != "done" {
		t.Fatalf("got %q, %v", v, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryExhausts(t *testing.T) {
	calls := 0
	err := RetryErr(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("always")
	})
	if err == nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryZeroAttemptsCallsOnce(t *testing.T) {
	calls := 0
	_ = RetryErr(context.Background(), RetryOpts{}, func(context.Context) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetryNotRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	opts := RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := RetryErr(context.Background(), opts, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryErr(ctx, RetryOpts{MaxAttempts: 10, InitialWait: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("x")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

// --- Slices ---

func TestChunk(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}
	chunks := Chunk(items, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if !reflect.DeepEqual(sizes, []int{100, 100, 50}) {
		t.Fatalf("sizes = %v", sizes)
	}
	if chunks[1][0] != 100 || chunks[2][49] != 249 {
		t.Fatal("order not preserved")
	}
	// Appending to a chunk must not clobber the next one.
	_ = append(chunks[0], -1)
	if chunks[1][0] != 100 {
		t.Fatal("chunks share capacity")
	}
}

func TestChunkEdges(t *testing.T) {
	if Chunk([]int{1, 2}, 0) != nil {
		t.Fatal("n <= 0 should return nil")
	}
	if Chunk([]int{}, 3) != nil {
		t.Fatal("empty input should return nil")
	}
	if got := Chunk([]int{1, 2, 3}, 3); len(got) != 1 {
		t.Fatalf("exact fit = %v", got)
	}
}

func TestMapFilterUnique(t *testing.T) {
	sq := Map([]int{1, 2, 3}, func(n int) int { return n * n })
	if !reflect.DeepEqual(sq, []int{1, 4, 9}) {
		t.Fatalf("Map = %v", sq)
	}
	idx := MapIndex([]string{"a", "b"}, func(i int, s string) string { return strconv.Itoa(i) + s })
	if !reflect.DeepEqual(idx, []string{"0a", "1b"}) {
		t.Fatalf("MapIndex = %v", idx)
	}
	even := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if !reflect.DeepEqual(even, []int{2, 4}) {
		t.Fatalf("Filter = %v", even)
	}
	u := Unique([]string{"b", "a", "b", "c", "a"})
	if !reflect.DeepEqual(u, []string{"b", "a", "c"}) {
		t.Fatalf("Unique = %v", u)
	}
}
