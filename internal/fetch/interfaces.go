package fetch

import (
	"context"
	"time"
)

// Fetcher performs one HTTP GET for an item through a proxy endpoint.
// Non-2xx statuses are returned in the Response; only transport failures
// (connection reset, timeout, DNS) surface as errors.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Sink durably appends result records. Append must be safe for concurrent
// callers and must complete before the caller reports success.
type Sink interface {
	Append(ctx context.Context, record Record) error
	Close() error
}

// Archive stores raw response bodies and returns a URI.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// Publisher pushes job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive object keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
