package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

func TestCoalescer_Do_ConcurrentRequests(t *testing.T) {
	c := newCoalescer[models.LiveObservation](5 * time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (models.LiveObservation, error) {
		calls.Add(1)
		<-release
		return models.LiveObservation{City: "Seattle", Temperature: 10.0}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.LiveObservation, 10)
	errs := make([]error, 10)
	var sharedCount atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var shared bool
			results[idx], shared, errs[idx] = c.Do(context.Background(), "seattle", fn)
			if shared {
				sharedCount.Add(1)
			}
		}(i)
	}
	// Let every goroutine join before releasing the upstream call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if result.City != "Seattle" {
			t.Errorf("Request %d city = %q, want Seattle", i, result.City)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", calls.Load())
	}
	if sharedCount.Load() != 9 {
		t.Errorf("shared callers = %d, want 9", sharedCount.Load())
	}
}

func TestCoalescer_Do_ErrorPropagation(t *testing.T) {
	c := newCoalescer[models.LiveObservation](5 * time.Second)
	wantErr := errors.New("api failure")

	fn := func(context.Context) (models.LiveObservation, error) {
		time.Sleep(10 * time.Millisecond)
		return models.LiveObservation{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = c.Do(context.Background(), "seattle", fn)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("Request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestCoalescer_Do_Timeout(t *testing.T) {
	c := newCoalescer[models.LiveObservation](100 * time.Millisecond)

	fn := func(ctx context.Context) (models.LiveObservation, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return models.LiveObservation{City: "Seattle"}, nil
		case <-ctx.Done():
			return models.LiveObservation{}, ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := c.Do(ctx, "seattle", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context deadline exceeded", err)
	}
}

// TestCoalescer_Do_CallerCancelDoesNotAbortFetch verifies that the shared call keeps
// running for other waiters when the first caller gives up.
func TestCoalescer_Do_CallerCancelDoesNotAbortFetch(t *testing.T) {
	c := newCoalescer[int](time.Second)
	fn := func(ctx context.Context) (int, error) {
		select {
		case <-time.After(50 * time.Millisecond):
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	first, cancel := context.WithCancel(context.Background())
	go func() {
		_, _, _ = c.Do(first, "k", fn)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	got, _, err := c.Do(context.Background(), "k", fn)
	if err != nil || got != 42 {
		t.Fatalf("Do() = %d, %v; want 42, nil", got, err)
	}
}

func TestCoalescer_Do_DifferentKeys(t *testing.T) {
	c := newCoalescer[string](5 * time.Second)
	var calls atomic.Int32

	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = c.Do(context.Background(), key, fn)
		}(fmt.Sprintf("key%d", i))
	}
	wg.Wait()

	if calls.Load() != 5 {
		t.Errorf("fn call count = %d, want 5 (no coalescing for different keys)", calls.Load())
	}
}
