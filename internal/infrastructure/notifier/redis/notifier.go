package redisnotifier

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	"github.com/lastword-games/roundd/internal/infrastructure/notifier"
	"github.com/redis/go-redis/v9"
)

type redisNotifier struct {
	rdb   *redis.Client
	topic string
	clock clockwork.Clock
}

// NewNotifier publishes every event on channel <topic>:<round_id>.
func NewNotifier(url, topic string, clock clockwork.Clock) (ports.Notifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if topic == "" {
		topic = domain.RoundTopic
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &redisNotifier{rdb, topic, clock}, nil
}

func (n *redisNotifier) Publish(ctx context.Context, event domain.RoundEvent) error {
	data, err := notifier.Encode(event, n.clock.Now())
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, Channel(n.topic, event.GetRoundId()), data).Err()
}

func (n *redisNotifier) Close() {
	// nolint
	n.rdb.Close()
}

func Channel(topic, roundId string) string {
	return fmt.Sprintf("%s:%s", topic, roundId)
}
