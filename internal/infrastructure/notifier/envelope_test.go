package notifier_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/notifier"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	event := domain.RoundSettled{
		Id:      "round-1",
		Winners: []string{"dave", "carol", "alice"},
		Shares:  []uint64{315000, 189000, 126000},
	}

	data, err := notifier.Encode(event, now)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "round_settled", raw["type"])
	require.Equal(t, "round-1", raw["round_id"])
	require.Contains(t, raw, "payload")
	require.Contains(t, raw, "published_at")

	envelope, err := notifier.Decode(data)
	require.NoError(t, err)
	require.Equal(t, domain.EventRoundSettled, envelope.Type)
	require.True(t, now.Equal(envelope.PublishedAt))

	var payload domain.RoundSettled
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	require.Equal(t, event.Winners, payload.Winners)
	require.Equal(t, event.Shares, payload.Shares)

	_, err = notifier.Decode([]byte("{"))
	require.Error(t, err)
}
