package events

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/learnbot/internal/logger"
)

func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNewRedisNotifier_RequiresAddr(t *testing.T) {
	_, err := NewRedisNotifier(context.Background(), logger.NewNop(), RedisOptions{})
	assert.Error(t, err)
}

func TestNewRedisNotifier_PingFailure(t *testing.T) {
	_, err := NewRedisNotifier(context.Background(), logger.NewNop(), RedisOptions{Addr: "127.0.0.1:1"})
	assert.ErrorContains(t, err, "redis ping")
}

func TestRedisNotifier_DefaultChannelAndPublishError(t *testing.T) {
	n := newRedisNotifier(logger.NewNop(), unreachableClient(t), "")
	assert.Equal(t, "learnbot.badges", n.channel)

	err := n.BadgeAwarded(context.Background(), BadgeAwarded{UserID: 1, BadgeType: "novice"})
	require.Error(t, err)

	assert.Error(t, n.Subscribe(context.Background(), nil))
}
