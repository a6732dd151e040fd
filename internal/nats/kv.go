package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/brightline-ai/agent-gateway/internal/registry"
)

// ThreadBucket is a JetStream key-value backed registry.ThreadStore. The
// bucket is what lets a recycled worker resume conversations: the session
// object dies with the process, the mapping does not.
type ThreadBucket struct {
	kv jetstream.KeyValue
}

// NewThreadBucket opens (or creates) the key-value bucket.
func NewThreadBucket(ctx context.Context, client *Client, bucket string) (*ThreadBucket, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "chat session to agent thread mapping",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}

	return &ThreadBucket{kv: kv}, nil
}

// Put records the thread id for a session.
func (b *ThreadBucket) Put(ctx context.Context, sessionID, threadID string) error {
	_, err := b.kv.PutString(ctx, sessionID, threadID)
	return err
}

// Get returns the recorded thread id, or registry.ErrNoThread.
func (b *ThreadBucket) Get(ctx context.Context, sessionID string) (string, error) {
	entry, err := b.kv.Get(ctx, sessionID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", registry.ErrNoThread
	}
	if err != nil {
		return "", err
	}
	return string(entry.Value()), nil
}
