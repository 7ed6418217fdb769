package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a *redis.Client with the Streams operations the two
// pipelines and the reconciliation driver need, generalized from the
// teacher's redisclient.Client (a thin wrapper constructed via
// redis.ParseURL) from plain GET/SET to XADD/XREADGROUP/XACK.
type Client struct {
	rdb *redis.Client
}

// New builds a Client from a redis:// or rediss:// connection URL.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity, the way cmd/coordinator's startup probe
// does before accepting traffic.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

func truncate(b []byte) []byte {
	if len(b) <= maxMessageBytes {
		return b
	}
	return b[:maxMessageBytes]
}

func (c *Client) enqueue(ctx context.Context, stream string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", stream, err)
	}
	payload = truncate(payload)
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"payload": payload},
	}).Err()
}

// EnqueueSyncIncremental pushes a SYNC_INCREMENTAL onto the sync queue.
func (c *Client) EnqueueSyncIncremental(ctx context.Context, msg SyncIncremental) error {
	msg.Type = "SYNC_INCREMENTAL"
	return c.enqueue(ctx, StreamSync, msg)
}

// EnqueueSyncFull pushes a SYNC_FULL onto the sync queue.
func (c *Client) EnqueueSyncFull(ctx context.Context, msg SyncFull) error {
	msg.Type = "SYNC_FULL"
	return c.enqueue(ctx, StreamSync, msg)
}

// EnqueueUpsertMirror pushes an UPSERT_MIRROR onto the write queue.
func (c *Client) EnqueueUpsertMirror(ctx context.Context, msg UpsertMirror) error {
	msg.Type = "UPSERT_MIRROR"
	return c.enqueue(ctx, StreamWrite, msg)
}

// EnqueueDeleteMirror pushes a DELETE_MIRROR onto the write queue.
func (c *Client) EnqueueDeleteMirror(ctx context.Context, msg DeleteMirror) error {
	msg.Type = "DELETE_MIRROR"
	return c.enqueue(ctx, StreamWrite, msg)
}

// EnqueueReconcileAccount pushes a RECONCILE_ACCOUNT onto the
// reconcile queue. The reconcile driver itself calls
// ReconcileAccount directly rather than going through this queue.
func (c *Client) EnqueueReconcileAccount(ctx context.Context, msg ReconcileAccount) error {
	msg.Type = "RECONCILE_ACCOUNT"
	return c.enqueue(ctx, StreamReconcile, msg)
}

// DeadLetter moves an unrecoverable message to the dead-letter stream
// with the reason it was abandoned, preserving the source stream name
// for operator triage.
func (c *Client) DeadLetter(ctx context.Context, sourceStream string, payload []byte, reason string) error {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamDLQ,
		Values: map[string]any{
			"source_stream": sourceStream,
			"payload":       payload,
			"reason":        reason,
		},
	}).Err()
}

// EnsureGroup creates a consumer group at the tail of a stream,
// tolerating BUSYGROUP (already exists) the way every redelivered
// consumer process must on restart.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Delivery is one pulled stream entry awaiting processing or ack.
type Delivery struct {
	ID      string
	Payload []byte
}

// ReadGroup pulls up to count new (never-delivered) entries for one
// consumer within a group, blocking up to block for new arrivals when
// none are immediately available. Entries already delivered but not yet
// acked are not re-read.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Delivery, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group %s/%s: %w", stream, group, err)
	}

	var out []Delivery
	for _, s := range res {
		for _, m := range s.Messages {
			raw, _ := m.Values["payload"].(string)
			out = append(out, Delivery{ID: m.ID, Payload: []byte(raw)})
		}
	}
	return out, nil
}

// Ack acknowledges successfully processed entries.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.rdb.XAck(ctx, stream, group, ids...).Err()
}
