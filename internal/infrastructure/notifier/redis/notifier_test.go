package redisnotifier_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/notifier"
	redisnotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNotifier(t *testing.T) {
	url := os.Getenv("ROUNDD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ROUNDD_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, redisnotifier.Channel("rounds", "round-1"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	n, err := redisnotifier.NewNotifier(url, "rounds", nil)
	require.NoError(t, err)
	defer n.Close()

	err = n.Publish(ctx, domain.SettlementClaimed{Id: "round-1", Version: 1, Pool: 700000})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	envelope, err := notifier.Decode([]byte(msg.Payload))
	require.NoError(t, err)
	require.Equal(t, domain.EventSettlementClaimed, envelope.Type)
	require.Equal(t, "round-1", envelope.RoundId)
}

func TestInvalidNotifier(t *testing.T) {
	_, err := redisnotifier.NewNotifier("not-a-url", "", nil)
	require.Error(t, err)
}
