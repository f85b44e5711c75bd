// Package notifier holds the wire format shared by every round event
// publisher.
package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
)

type Envelope struct {
	Type        domain.EventType `json:"type"`
	RoundId     string           `json:"round_id"`
	Payload     json.RawMessage  `json:"payload"`
	PublishedAt time.Time        `json:"published_at"`
}

func NewEnvelope(event domain.RoundEvent, now time.Time) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}
	return &Envelope{
		Type:        event.GetType(),
		RoundId:     event.GetRoundId(),
		Payload:     payload,
		PublishedAt: now.UTC(),
	}, nil
}

func Encode(event domain.RoundEvent, now time.Time) ([]byte, error) {
	envelope, err := NewEnvelope(event, now)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}

func Decode(data []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	return envelope, nil
}
