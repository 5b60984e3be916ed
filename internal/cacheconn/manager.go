package cacheconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	maxTries   = 3
	tryTimeout = 10 * time.Second
	baseDelay  = 1 * time.Second
	maxDelay   = 5 * time.Second
)

// ErrNoCacheURL is returned when the manager was constructed without a
// connection URL. No connection attempt is made in that case.
var ErrNoCacheURL = errors.New("cacheconn: no cache URL configured")

// Manager owns a single lazily-established connection to the session cache.
// Concurrent callers of Acquire share one in-flight connection attempt, so a
// burst of requests never triggers a thundering herd of reconnects.
type Manager struct {
	url    string
	logger *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	client *redis.Client

	// Overridable in tests.
	dial  func(ctx context.Context, url string) (*redis.Client, error)
	sleep func(d time.Duration)
}

// NewManager returns a manager for the cache at url. The connection is not
// opened until the first Acquire.
func NewManager(url string, logger *slog.Logger) *Manager {
	return &Manager{
		url:    url,
		logger: logger,
		dial:   dialRedis,
		sleep:  time.Sleep,
	}
}

// Acquire returns the live cache connection, establishing it first if
// needed. It is safe for concurrent use; callers arriving while a connection
// attempt is in flight await that same attempt.
func (m *Manager) Acquire(ctx context.Context) (*redis.Client, error) {
	if m.url == "" {
		return nil, ErrNoCacheURL
	}

	m.mu.Lock()
	if m.client != nil {
		client := m.client
		m.mu.Unlock()
		return client, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("connect", func() (any, error) {
		return m.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*redis.Client), nil
}

// Release closes the connection if one is open and clears in-flight state.
// Safe to call when the manager never connected.
func (m *Manager) Release() {
	m.group.Forget("connect")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Warn("closing cache connection", "error", err)
		}
		m.client = nil
	}
}

// connect runs one full connection attempt: up to maxTries tries, each with
// a hard timeout, exponential backoff between them. Partially-opened handles
// are torn down before a retry.
func (m *Manager) connect(ctx context.Context) (*redis.Client, error) {
	var lastErr error
	for try := 1; try <= maxTries; try++ {
		m.logger.Info("connecting to session cache", "try", try, "max_tries", maxTries)

		tryCtx, cancel := context.WithTimeout(ctx, tryTimeout)
		client, err := m.dial(tryCtx, m.url)
		cancel()

		if err == nil {
			m.mu.Lock()
			m.client = client
			m.mu.Unlock()
			m.logger.Info("session cache connected", "try", try)
			return client, nil
		}

		lastErr = err
		if client != nil {
			client.Close()
		}
		m.logger.Warn("session cache connect failed", "try", try, "error", err)

		if try < maxTries {
			m.sleep(backoff(try))
		}
	}

	m.logger.Error("giving up on session cache", "tries", maxTries, "error", lastErr)
	return nil, fmt.Errorf("cacheconn: connection failed after %d attempts: %w", maxTries, lastErr)
}

// backoff returns the delay after the given failed try: 1s, 2s, 4s... capped
// at maxDelay.
func backoff(try int) time.Duration {
	d := baseDelay << (try - 1)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func dialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing cache URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		// Return the handle so the caller can tear it down.
		return client, fmt.Errorf("pinging cache: %w", err)
	}
	return client, nil
}
