package watermillnotifier

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	"github.com/lastword-games/roundd/internal/infrastructure/notifier"
	_ "github.com/lib/pq"
)

const (
	roundIdMetadata   = "round_id"
	eventTypeMetadata = "type"
)

type watermillNotifier struct {
	publisher message.Publisher
	db        *sql.DB
	topic     string
	clock     clockwork.Clock
}

// NewNotifier wraps any watermill publisher. Every event becomes one message
// on topic, tagged with the round id and event type.
func NewNotifier(publisher message.Publisher, topic string, clock clockwork.Clock) ports.Notifier {
	if topic == "" {
		topic = domain.RoundTopic
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &watermillNotifier{publisher: publisher, topic: topic, clock: clock}
}

// NewOutboxNotifier appends events to a postgres outbox table that any
// watermill-sql subscriber can relay.
func NewOutboxNotifier(dsn, topic string, clock clockwork.Clock) (ports.Notifier, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox db: %w", err)
	}
	if err := db.Ping(); err != nil {
		// nolint
		db.Close()
		return nil, fmt.Errorf("failed to reach outbox db: %w", err)
	}

	publisher, err := watermillSQL.NewPublisher(
		db,
		watermillSQL.PublisherConfig{
			SchemaAdapter:        watermillSQL.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		// nolint
		db.Close()
		return nil, fmt.Errorf("failed to create outbox publisher: %w", err)
	}

	n := NewNotifier(publisher, topic, clock).(*watermillNotifier)
	n.db = db
	return n, nil
}

func (n *watermillNotifier) Publish(ctx context.Context, event domain.RoundEvent) error {
	payload, err := notifier.Encode(event, n.clock.Now())
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(roundIdMetadata, event.GetRoundId())
	msg.Metadata.Set(eventTypeMetadata, string(event.GetType()))
	msg.SetContext(ctx)

	return n.publisher.Publish(n.topic, msg)
}

func (n *watermillNotifier) Close() {
	//nolint:errcheck
	n.publisher.Close()
	if n.db != nil {
		//nolint:errcheck
		n.db.Close()
	}
}
