package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type testComponent struct {
	name      string
	startErr  error
	stopErr   error
	events    *[]string
	startCall int
	stopCall  int
}

func (c *testComponent) Start(ctx context.Context) error {
	_ = ctx
	c.startCall++
	if c.events != nil {
		*c.events = append(*c.events, "start:"+c.name)
	}
	return c.startErr
}

func (c *testComponent) Stop(ctx context.Context) error {
	_ = ctx
	c.stopCall++
	if c.events != nil {
		*c.events = append(*c.events, "stop:"+c.name)
	}
	return c.stopErr
}

func TestRuntimeStartStopOrder(t *testing.T) {
	t.Parallel()

	events := make([]string, 0, 6)
	c1 := &testComponent{name: "one", events: &events}
	c2 := &testComponent{name: "two", events: &events}
	c3 := &testComponent{name: "three", events: &events}

	runtime := NewRuntime(c1, c2, c3)
	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	if err := runtime.Stop(context.Background()); err != nil {
		t.Fatalf("stop runtime: %v", err)
	}

	expected := []string{
		"start:one",
		"start:two",
		"start:three",
		"stop:three",
		"stop:two",
		"stop:one",
	}
	if !reflect.DeepEqual(events, expected) {
		t.Fatalf("unexpected event order: %v", events)
	}
}

func TestRuntimeStartFailureRollsBackStartedComponents(t *testing.T) {
	t.Parallel()

	c1 := &testComponent{name: "one"}
	c2 := &testComponent{name: "two", startErr: errors.New("boom")}
	c3 := &testComponent{name: "three"}

	runtime := NewRuntime(c1, c2, c3)
	if err := runtime.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if c1.stopCall != 1 {
		t.Fatalf("first component should be stopped on rollback, stop calls: %d", c1.stopCall)
	}
	if c3.startCall != 0 {
		t.Fatal("components after the failure must not be started")
	}
}

func TestRuntimeStopCollectsAllErrors(t *testing.T) {
	t.Parallel()

	errOne := errors.New("one failed")
	errTwo := errors.New("two failed")
	c1 := &testComponent{name: "one", stopErr: errOne}
	c2 := &testComponent{name: "two", stopErr: errTwo}

	runtime := NewRuntime(c1, c2)
	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	err := runtime.Stop(context.Background())
	if !errors.Is(err, errOne) || !errors.Is(err, errTwo) {
		t.Fatalf("stop should join both errors, got %v", err)
	}
}

type stuckComponent struct{}

func (stuckComponent) Start(context.Context) error { return nil }

func (stuckComponent) Stop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestShutdownTimeoutUnblocksStuckComponent(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(stuckComponent{})
	runtime.stopTimeout = 20 * time.Millisecond
	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- runtime.Shutdown() }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error from stuck component, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown did not give up on the stuck component")
	}
}

func TestRuntimeSkipsNilComponents(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(nil, &testComponent{name: "one"}, nil)
	runtime.Register(nil)
	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	if err := runtime.Stop(context.Background()); err != nil {
		t.Fatalf("stop runtime: %v", err)
	}
}
