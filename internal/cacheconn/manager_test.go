package cacheconn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func testManager(dial func(ctx context.Context, url string) (*redis.Client, error)) (*Manager, *[]time.Duration) {
	m := NewManager("redis://localhost:6379/0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	var slept []time.Duration
	m.dial = dial
	m.sleep = func(d time.Duration) { slept = append(slept, d) }
	return m, &slept
}

func TestAcquire(t *testing.T) {
	t.Run("missing URL fails immediately", func(t *testing.T) {
		m := NewManager("", slog.New(slog.NewTextHandler(io.Discard, nil)))
		dialed := false
		m.dial = func(ctx context.Context, url string) (*redis.Client, error) {
			dialed = true
			return nil, nil
		}

		_, err := m.Acquire(context.Background())
		if !errors.Is(err, ErrNoCacheURL) {
			t.Fatalf("Expected ErrNoCacheURL, got %v", err)
		}
		if dialed {
			t.Error("Expected no connection attempt without a URL")
		}
	})

	t.Run("two failures then success backs off 1s then 2s", func(t *testing.T) {
		tries := 0
		want := redis.NewClient(&redis.Options{})
		m, slept := testManager(func(ctx context.Context, url string) (*redis.Client, error) {
			tries++
			if tries < 3 {
				return nil, errors.New("connection refused")
			}
			return want, nil
		})

		client, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Expected success on third try, got %v", err)
		}
		if client != want {
			t.Error("Expected the dialed client to be returned")
		}
		if tries != 3 {
			t.Errorf("Expected 3 tries, got %d", tries)
		}
		if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
			t.Errorf("Expected backoff delays [1s 2s], got %v", *slept)
		}
	})

	t.Run("exhausting all tries is terminal", func(t *testing.T) {
		tries := 0
		m, slept := testManager(func(ctx context.Context, url string) (*redis.Client, error) {
			tries++
			return nil, errors.New("connection refused")
		})

		_, err := m.Acquire(context.Background())
		if err == nil {
			t.Fatal("Expected an error after exhausting all tries")
		}
		if tries != 3 {
			t.Errorf("Expected 3 tries, got %d", tries)
		}
		// No wait after the final failure.
		if len(*slept) != 2 {
			t.Errorf("Expected 2 backoff delays, got %v", *slept)
		}
	})

	t.Run("second acquire reuses the live connection", func(t *testing.T) {
		tries := 0
		m, _ := testManager(func(ctx context.Context, url string) (*redis.Client, error) {
			tries++
			return redis.NewClient(&redis.Options{}), nil
		})

		first, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		second, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Error("Expected the same client on the second acquire")
		}
		if tries != 1 {
			t.Errorf("Expected a single dial, got %d", tries)
		}
	})

	t.Run("concurrent acquirers share one attempt", func(t *testing.T) {
		var mu sync.Mutex
		tries := 0
		release := make(chan struct{})
		m, _ := testManager(func(ctx context.Context, url string) (*redis.Client, error) {
			mu.Lock()
			tries++
			mu.Unlock()
			<-release
			return redis.NewClient(&redis.Options{}), nil
		})

		var wg sync.WaitGroup
		clients := make([]*redis.Client, 4)
		for i := range clients {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				clients[i], _ = m.Acquire(context.Background())
			}(i)
		}
		// Let all goroutines pile onto the in-flight attempt.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if tries != 1 {
			t.Errorf("Expected a single shared dial, got %d", tries)
		}
		for i := 1; i < len(clients); i++ {
			if clients[i] != clients[0] {
				t.Error("Expected every caller to receive the same client")
			}
		}
	})
}

func TestRelease(t *testing.T) {
	t.Run("safe when never connected", func(t *testing.T) {
		m, _ := testManager(nil)
		m.Release() // must not panic
	})

	t.Run("clears the connection so the next acquire redials", func(t *testing.T) {
		tries := 0
		m, _ := testManager(func(ctx context.Context, url string) (*redis.Client, error) {
			tries++
			return redis.NewClient(&redis.Options{}), nil
		})

		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
		m.Release()
		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
		if tries != 2 {
			t.Errorf("Expected a redial after release, got %d dials", tries)
		}
	})
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		try  int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // capped
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff(tc.try); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.try, got, tc.want)
		}
	}
}
