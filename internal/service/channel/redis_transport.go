package channel

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisTransport publishes realtime payloads on Redis pub/sub; the channel
// name is the destination, so gateways subscribe to e.g. "/topic/orders".
type RedisTransport struct {
	client redis.UniversalClient
}

func NewRedisTransport(client redis.UniversalClient) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Send(ctx context.Context, destination string, payload []byte) error {
	return t.client.Publish(ctx, destination, payload).Err()
}

// ErrTransportUnavailable is returned when no realtime backend is configured.
var ErrTransportUnavailable = errors.New("realtime transport unavailable")

// UnavailableTransport fails every send. It stands in when Redis is not configured.
type UnavailableTransport struct{}

func (UnavailableTransport) Send(context.Context, string, []byte) error {
	return unavailableError{}
}

type unavailableError struct{}

func (unavailableError) Error() string   { return ErrTransportUnavailable.Error() }
func (unavailableError) Retryable() bool { return true }
func (unavailableError) Is(target error) bool {
	return target == ErrTransportUnavailable
}
