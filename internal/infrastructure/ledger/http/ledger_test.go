package httpledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lastword-games/roundd/internal/core/ports"
	httpledger "github.com/lastword-games/roundd/internal/infrastructure/ledger/http"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type wallet struct {
	lock     sync.Mutex
	seen     map[string]bool
	balances map[string]uint64
	status   int
}

func (w *wallet) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/v1/credits" || req.Method != http.MethodPost {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	var body struct {
		UserId         string `json:"user_id"`
		Amount         uint64 `json:"amount"`
		IdempotencyKey string `json:"idempotency_key"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Header.Get("Idempotency-Key") != body.IdempotencyKey {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	w.lock.Lock()
	defer w.lock.Unlock()
	if w.status != 0 {
		http.Error(rw, "unavailable", w.status)
		return
	}
	if w.seen[body.IdempotencyKey] {
		rw.WriteHeader(http.StatusConflict)
		return
	}
	w.seen[body.IdempotencyKey] = true
	w.balances[body.UserId] += body.Amount
	rw.WriteHeader(http.StatusCreated)
}

func (w *wallet) setStatus(status int) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.status = status
}

func (w *wallet) balance(userId string) uint64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.balances[userId]
}

func TestLedger(t *testing.T) {
	w := &wallet{seen: make(map[string]bool), balances: make(map[string]uint64)}
	server := httptest.NewServer(w)
	defer server.Close()

	l, err := httpledger.NewLedgerService(server.URL+"/", time.Second)
	require.NoError(t, err)
	defer l.Close()

	t.Run("credit and replay", func(t *testing.T) {
		applied, err := l.Credit(ctx, "alice", 315000, "k1")
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = l.Credit(ctx, "alice", 315000, "k1")
		require.NoError(t, err)
		require.True(t, applied)
		require.Equal(t, uint64(315000), w.balance("alice"))
	})

	t.Run("permanent failure", func(t *testing.T) {
		w.setStatus(http.StatusUnprocessableEntity)
		defer w.setStatus(0)

		applied, err := l.Credit(ctx, "bob", 100, "k2")
		require.ErrorIs(t, err, ports.ErrPermanentCredit)
		require.False(t, applied)
	})

	t.Run("transient failure", func(t *testing.T) {
		statuses := []int{
			http.StatusServiceUnavailable,
			http.StatusBadGateway,
			http.StatusTooManyRequests,
			http.StatusRequestTimeout,
			http.StatusTooEarly,
		}
		for _, status := range statuses {
			t.Run(http.StatusText(status), func(t *testing.T) {
				w.setStatus(status)
				defer w.setStatus(0)

				applied, err := l.Credit(ctx, "bob", 100, "k3")
				require.Error(t, err)
				require.NotErrorIs(t, err, ports.ErrPermanentCredit)
				require.False(t, applied)
			})
		}

		applied, err := l.Credit(ctx, "bob", 100, "k3")
		require.NoError(t, err)
		require.True(t, applied)
		require.Equal(t, uint64(100), w.balance("bob"))
	})
}

func TestInvalidLedger(t *testing.T) {
	_, err := httpledger.NewLedgerService("not a url", time.Second)
	require.Error(t, err)

	_, err = httpledger.NewLedgerService("http://localhost:1", 0)
	require.Error(t, err)
}

func TestUnreachableLedger(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	l, err := httpledger.NewLedgerService(url, time.Second)
	require.NoError(t, err)

	_, err = l.Credit(ctx, "alice", 1, "k1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ports.ErrPermanentCredit)
}
