package natsnotifier

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	"github.com/lastword-games/roundd/internal/infrastructure/notifier"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type natsNotifier struct {
	conn  *nats.Conn
	topic string
	clock clockwork.Clock
}

// NewNotifier publishes every event on subject <topic>.<round_id>.<type>.
func NewNotifier(url, topic string, clock clockwork.Clock) (ports.Notifier, error) {
	if topic == "" {
		topic = domain.RoundTopic
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("roundd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected from nats")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &natsNotifier{conn, topic, clock}, nil
}

func (n *natsNotifier) Publish(_ context.Context, event domain.RoundEvent) error {
	data, err := notifier.Encode(event, n.clock.Now())
	if err != nil {
		return err
	}
	return n.conn.Publish(Subject(n.topic, event), data)
}

func (n *natsNotifier) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}

func Subject(topic string, event domain.RoundEvent) string {
	return fmt.Sprintf("%s.%s.%s", topic, event.GetRoundId(), event.GetType())
}
