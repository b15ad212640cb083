package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-pipeline/internal/domain/anpr"
)

func TestNewRedisPublisherInvalidURL(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), "not-a-url", "anpr:plates")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestPublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	pub := NewRedisPublisherWithClient(client, "anpr:plates")
	defer pub.Close()

	assert.Equal(t, "redis", pub.Name())

	err := pub.Publish(context.Background(), anpr.EventPayload{CameraID: "gate-1", Plate: "ABC-12-34"})
	assert.Error(t, err)
}
