package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"voltrack/internal/volume"
)

func TestDoReturnsValue(t *testing.T) {
	p := New(2, time.Second)
	got, err := Do(context.Background(), p, "answer", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestDoPassesThroughTaskError(t *testing.T) {
	p := New(1, time.Second)
	want := errors.New("boom")
	_, err := Do(context.Background(), p, "fail", func(context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected task error, got %v", err)
	}
	if errors.Is(err, volume.ErrTaskJoin) {
		t.Error("task errors should not be reported as join failures")
	}
}

func TestDoRecoversPanic(t *testing.T) {
	p := New(1, time.Second)
	_, err := Do(context.Background(), p, "panic", func(context.Context) (int, error) {
		panic("kaboom")
	})
	if !errors.Is(err, volume.ErrTaskJoin) {
		t.Fatalf("expected TaskJoin, got %v", err)
	}

	// The slot must be released after a panic.
	if _, err := Do(context.Background(), p, "after", func(context.Context) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestDoTimeout(t *testing.T) {
	p := New(1, 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	_, err := Do(context.Background(), p, "slow", func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	if !errors.Is(err, volume.ErrTaskJoin) || !errors.Is(err, volume.ErrPlatform) {
		t.Fatalf("expected TaskJoin, got %v", err)
	}
}

func TestDoDefault(t *testing.T) {
	p := New(1, time.Second)
	got := DoDefault(context.Background(), p, "fallback", "safe", func(context.Context) (string, error) {
		return "", errors.New("no")
	})
	if got != "safe" {
		t.Errorf("got %q, want default", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2, time.Second)
	var running, peak atomic.Int32

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			Do(context.Background(), p, "work", func(context.Context) (int, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return 0, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds pool size", peak.Load())
	}
}
