package sessioncache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Connector hands out the live cache connection. Implemented by
// cacheconn.Manager.
type Connector interface {
	Acquire(ctx context.Context) (*redis.Client, error)
}

// Cache is CRUD over session entries in the TTL key-value store. Every
// successful mutation pushes the entry's expiry out to TTL from now.
//
// Concurrent mutations of the same entry are not serialized; the store
// applies them last-write-wins. A single logical writer per session is
// assumed.
type Cache struct {
	conn Connector
	now  func() time.Time
}

// New returns a cache backed by the given connector.
func New(conn Connector) *Cache {
	return &Cache{conn: conn, now: time.Now}
}

func sessionKey(deckID uuid.UUID) string {
	return "study:session:" + deckID.String()
}

// Create stores the entry, replacing any previous entry for the same deck,
// and stamps CreatedAt and ExpiresAt.
func (c *Cache) Create(ctx context.Context, e *Entry) error {
	client, err := c.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring cache connection: %w", err)
	}

	now := c.now()
	e.CreatedAt = now
	e.ExpiresAt = now.Add(TTL)

	fields, err := Flatten(e)
	if err != nil {
		return fmt.Errorf("serializing session %s: %w", e.DeckID, err)
	}

	key := sessionKey(e.DeckID)
	pipe := client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing session %s: %w", e.DeckID, err)
	}
	return nil
}

// Get returns the entry for the session, or nil when absent. An entry whose
// ExpiresAt has passed is treated as absent even if the store has not yet
// evicted it.
func (c *Cache) Get(ctx context.Context, sessionID uuid.UUID) (*Entry, error) {
	client, err := c.conn.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring cache connection: %w", err)
	}

	fields, err := client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry, err := Unflatten(fields)
	if err != nil {
		return nil, fmt.Errorf("deserializing session %s: %w", sessionID, err)
	}
	if entry.Expired(c.now()) {
		// The store has not evicted it yet; reclaim eagerly, best-effort.
		client.Del(ctx, sessionKey(sessionID))
		return nil, nil
	}
	return entry, nil
}

// Delete removes the entry. Deleting an absent entry is not an error.
func (c *Cache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	client, err := c.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring cache connection: %w", err)
	}
	if err := client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// AppendReview writes the updated card and log list for one item back to the
// stored entry and refreshes the TTL. The entry must already carry the new
// card and appended log in memory; its ExpiresAt is updated in place.
func (c *Cache) AppendReview(ctx context.Context, e *Entry, itemID int64) error {
	client, err := c.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring cache connection: %w", err)
	}

	cardField, err := flattenCard(e.Cards[itemID])
	if err != nil {
		return fmt.Errorf("serializing card %d: %w", itemID, err)
	}
	logsField, err := flattenLogs(e.Logs[itemID])
	if err != nil {
		return fmt.Errorf("serializing logs %d: %w", itemID, err)
	}

	e.ExpiresAt = c.now().Add(TTL)
	id := strconv.FormatInt(itemID, 10)

	key := sessionKey(e.DeckID)
	pipe := client.TxPipeline()
	pipe.HSet(ctx, key, map[string]string{
		prefixCard + id:  cardField,
		prefixLogs + id:  logsField,
		fieldExpiresAt:   encodeTime(e.ExpiresAt),
	})
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating session %s item %d: %w", e.DeckID, itemID, err)
	}
	return nil
}
