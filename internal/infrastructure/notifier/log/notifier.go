package lognotifier

import (
	"context"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type notifier struct {
	logger log.FieldLogger
}

// NewNotifier returns a notifier that only writes events to the log. A nil
// logger means the standard one.
func NewNotifier(logger log.FieldLogger) ports.Notifier {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &notifier{logger}
}

func (n *notifier) Publish(_ context.Context, event domain.RoundEvent) error {
	n.logger.WithFields(log.Fields{
		"round_id": event.GetRoundId(),
		"event":    event.GetType(),
	}).Infof("%+v", event)
	return nil
}

func (n *notifier) Close() {}
