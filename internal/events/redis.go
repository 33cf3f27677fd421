package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/learnbot/internal/logger"
)

type RedisNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func NewRedisNotifier(ctx context.Context, log *logger.Logger, opts RedisOptions) (*RedisNotifier, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisNotifier(log, rdb, opts.Channel), nil
}

func newRedisNotifier(log *logger.Logger, rdb *goredis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "learnbot.badges"
	}
	return &RedisNotifier{
		log:     log.With("component", "RedisBadgeBus"),
		rdb:     rdb,
		channel: channel,
	}
}

func (n *RedisNotifier) BadgeAwarded(ctx context.Context, ev BadgeAwarded) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}

// Subscribe forwards every notification on the channel to onEvent until ctx
// is done. It returns once the subscription is confirmed.
func (n *RedisNotifier) Subscribe(ctx context.Context, onEvent func(BadgeAwarded)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := n.rdb.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev BadgeAwarded
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					n.log.Warn("bad badge event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func (n *RedisNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}
