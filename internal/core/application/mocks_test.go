package application_test

import (
	"context"
	"sync"

	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	inmemoryledger "github.com/lastword-games/roundd/internal/infrastructure/ledger/inmemory"
	"github.com/stretchr/testify/mock"
)

type mockedLedger struct {
	mock.Mock
}

func (m *mockedLedger) Credit(
	ctx context.Context, userId string, amount uint64, idempotencyKey string,
) (bool, error) {
	args := m.Called(ctx, userId, amount, idempotencyKey)
	return args.Bool(0), args.Error(1)
}

func (m *mockedLedger) Close() {}

// flakyLedger fails credits of selected users and forwards everything else
// to an in-memory ledger.
type flakyLedger struct {
	*inmemoryledger.Ledger

	lock     sync.Mutex
	failures map[string]error
	calls    map[string]int
}

func newFlakyLedger() *flakyLedger {
	return &flakyLedger{
		Ledger:   inmemoryledger.NewLedgerService(),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (l *flakyLedger) Credit(
	ctx context.Context, userId string, amount uint64, idempotencyKey string,
) (bool, error) {
	l.lock.Lock()
	l.calls[userId]++
	err := l.failures[userId]
	l.lock.Unlock()

	if err != nil {
		return false, err
	}
	return l.Ledger.Credit(ctx, userId, amount, idempotencyKey)
}

func (l *flakyLedger) fail(userId string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if err == nil {
		delete(l.failures, userId)
		return
	}
	l.failures[userId] = err
}

func (l *flakyLedger) callsFor(userId string) int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.calls[userId]
}

type recordingNotifier struct {
	lock   sync.Mutex
	events []domain.RoundEvent
}

func (n *recordingNotifier) Publish(_ context.Context, event domain.RoundEvent) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Close() {}

func (n *recordingNotifier) count(roundId string, eventType domain.EventType) int {
	n.lock.Lock()
	defer n.lock.Unlock()

	count := 0
	for _, e := range n.events {
		if e.GetRoundId() == roundId && e.GetType() == eventType {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) last(roundId string, eventType domain.EventType) domain.RoundEvent {
	n.lock.Lock()
	defer n.lock.Unlock()

	for i := len(n.events) - 1; i >= 0; i-- {
		if e := n.events[i]; e.GetRoundId() == roundId && e.GetType() == eventType {
			return e
		}
	}
	return nil
}

var (
	_ ports.LedgerService = (*mockedLedger)(nil)
	_ ports.LedgerService = (*flakyLedger)(nil)
	_ ports.Notifier      = (*recordingNotifier)(nil)
)
