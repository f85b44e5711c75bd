package httpservice_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/application"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/infrastructure/db"
	inmemoryledger "github.com/lastword-games/roundd/internal/infrastructure/ledger/inmemory"
	lognotifier "github.com/lastword-games/roundd/internal/infrastructure/notifier/log"
	service_interface "github.com/lastword-games/roundd/internal/interface"
	httpservice "github.com/lastword-games/roundd/internal/interface/http"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	clock   *clockwork.FakeClock
	ledger  *inmemoryledger.Ledger
	token   string
}

func newTestServer(t *testing.T) *testServer {
	repoManager, err := db.NewService(db.ServiceConfig{DataStoreType: "inmemory"})
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	clock := clockwork.NewFakeClockAt(start)
	ledger := inmemoryledger.NewLedgerService()

	svc, err := application.NewService(application.Config{
		PlatformCutBps:       1000,
		Distribution:         domain.DistributionTable{1: {10000}, 2: {6000, 4000}},
		SettlementLease:      30 * time.Second,
		CreditInitialBackoff: time.Millisecond,
		CreditMaxBackoff:     time.Millisecond,
		CreditRetryHorizon:   10 * time.Millisecond,
		KeepAliveMaxRetries:  16,
		TickConcurrency:      2,
	}, repoManager, ledger, lognotifier.NewNotifier(logger), nil, clock)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	token, err := httpservice.NewAdminToken(secret, time.Hour)
	require.NoError(t, err)

	return &testServer{httpservice.NewHandler(svc, secret), clock, ledger, token}
}

func (s *testServer) do(
	t *testing.T, method, path, token string, body interface{}, out interface{},
) int {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

type round struct {
	Id                string   `json:"id"`
	Status            string   `json:"status"`
	PoolValue         uint64   `json:"pool_value"`
	LastActors        []string `json:"last_actors"`
	SettlementVersion uint64   `json:"settlement_version"`
	RemainingMs       int64    `json:"remaining_ms"`
	Disbursement      *struct {
		Kind      string `json:"kind"`
		NetPool   uint64 `json:"net_pool"`
		Completed bool   `json:"completed"`
		Payouts   []struct {
			UserId string `json:"user_id"`
			Amount uint64 `json:"amount"`
			Status string `json:"status"`
		} `json:"payouts"`
	} `json:"disbursement"`
}

func TestRoundApi(t *testing.T) {
	s := newTestServer(t)

	var created round
	code := s.do(t, http.MethodPost, "/v1/rounds", s.token, map[string]interface{}{
		"id":               "round-1",
		"entry_fee":        500,
		"min_participants": 2,
		"winner_count":     2,
		"base_countdown":   "30s",
		"final_stretch":    "5s",
		"open_duration":    "1m",
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "SCHEDULED", created.Status)

	for _, user := range []string{"alice", "bob"} {
		code = s.do(t, http.MethodPost, "/v1/rounds/round-1/participants", "",
			map[string]interface{}{"user_id": user}, nil)
		require.Equal(t, http.StatusOK, code)
	}
	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/participants", "",
		map[string]interface{}{"user_id": "alice"}, nil)
	require.Equal(t, http.StatusConflict, code)

	var r round
	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/contributions", s.token,
		map[string]interface{}{"amount": 1000}, &r)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint64(2000), r.PoolValue)

	var keepAlive struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/keepalive", "",
		map[string]interface{}{"actor_id": "alice"}, &keepAlive)
	require.Equal(t, http.StatusOK, code)
	require.False(t, keepAlive.Accepted)
	require.Equal(t, "too_early", keepAlive.Reason)

	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/tick", "", nil, &r)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OPEN", r.Status)

	s.clock.Advance(time.Minute)
	var summary struct {
		Ticked  int `json:"ticked"`
		Settled int `json:"settled"`
	}
	code = s.do(t, http.MethodPost, "/v1/ticks", "", nil, &summary)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, summary.Ticked)

	for _, actor := range []string{"bob", "alice"} {
		s.clock.Advance(time.Second)
		code = s.do(t, http.MethodPost, "/v1/rounds/round-1/keepalive", "",
			map[string]interface{}{"actor_id": actor}, &keepAlive)
		require.Equal(t, http.StatusOK, code)
		require.True(t, keepAlive.Accepted)
	}

	code = s.do(t, http.MethodGet, "/v1/rounds/round-1", "", nil, &r)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "LIVE", r.Status)
	require.Equal(t, []string{"alice", "bob"}, r.LastActors)
	require.Equal(t, int64(30000), r.RemainingMs)

	s.clock.Advance(30 * time.Second)
	code = s.do(t, http.MethodPost, "/v1/ticks", "", nil, &summary)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, summary.Ticked)
	require.Equal(t, 1, summary.Settled)

	code = s.do(t, http.MethodGet, "/v1/rounds/round-1", "", nil, &r)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "SETTLED", r.Status)
	require.Equal(t, uint64(1), r.SettlementVersion)
	require.NotNil(t, r.Disbursement)
	require.True(t, r.Disbursement.Completed)
	require.Equal(t, uint64(1800), r.Disbursement.NetPool)
	require.Equal(t, uint64(1080), s.ledger.Balance("alice"))
	require.Equal(t, uint64(720), s.ledger.Balance("bob"))

	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/cancel", s.token, nil, nil)
	require.Equal(t, http.StatusConflict, code)

	code = s.do(t, http.MethodPost, "/v1/rounds/round-1/settlement/resume", s.token, nil, nil)
	require.Equal(t, http.StatusConflict, code)
}

func TestCancelApi(t *testing.T) {
	s := newTestServer(t)

	code := s.do(t, http.MethodPost, "/v1/rounds", s.token, map[string]interface{}{
		"id":               "round-2",
		"entry_fee":        500,
		"min_participants": 2,
		"winner_count":     1,
		"base_countdown":   "30s",
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	code = s.do(t, http.MethodPost, "/v1/rounds/round-2/participants", "",
		map[string]interface{}{"user_id": "alice"}, nil)
	require.Equal(t, http.StatusOK, code)

	var r round
	code = s.do(t, http.MethodPost, "/v1/rounds/round-2/cancel", s.token,
		map[string]interface{}{"reason": "venue closed"}, &r)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "CANCELLED", r.Status)
	require.Equal(t, "refunds", r.Disbursement.Kind)
	require.Equal(t, uint64(500), s.ledger.Balance("alice"))
}

func TestApiErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{
			name:   "unknown round",
			method: http.MethodGet,
			path:   "/v1/rounds/missing",
			status: http.StatusNotFound,
		},
		{
			name:   "tick unknown round",
			method: http.MethodPost,
			path:   "/v1/rounds/missing/tick",
			status: http.StatusNotFound,
		},
		{
			name:   "create without token",
			method: http.MethodPost,
			path:   "/v1/rounds",
			body:   map[string]interface{}{"winner_count": 1},
			status: http.StatusUnauthorized,
		},
		{
			name:   "create with bad token",
			method: http.MethodPost,
			path:   "/v1/rounds",
			token:  "not-a-jwt",
			body:   map[string]interface{}{"winner_count": 1},
			status: http.StatusUnauthorized,
		},
		{
			name:   "create with non admin token",
			method: http.MethodPost,
			path:   "/v1/rounds",
			token:  signToken(t, jwt.MapClaims{"role": "player"}),
			body:   map[string]interface{}{"winner_count": 1},
			status: http.StatusForbidden,
		},
		{
			name:   "create with invalid config",
			method: http.MethodPost,
			path:   "/v1/rounds",
			token:  s.token,
			body:   map[string]interface{}{"winner_count": 1, "min_participants": 1},
			status: http.StatusBadRequest,
		},
		{
			name:   "create with unknown winner count",
			method: http.MethodPost,
			path:   "/v1/rounds",
			token:  s.token,
			body: map[string]interface{}{
				"winner_count": 5, "min_participants": 1, "base_countdown": "10s",
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "create with invalid duration",
			method: http.MethodPost,
			path:   "/v1/rounds",
			token:  s.token,
			body:   map[string]interface{}{"winner_count": 1, "base_countdown": "soon"},
			status: http.StatusBadRequest,
		},
		{
			name:   "join without user",
			method: http.MethodPost,
			path:   "/v1/rounds/missing/participants",
			body:   map[string]interface{}{},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := s.do(t, tt.method, tt.path, tt.token, tt.body, nil)
			require.Equal(t, tt.status, code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code := s.do(t, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestOpenAdminRoutes(t *testing.T) {
	repoManager, err := db.NewService(db.ServiceConfig{DataStoreType: "inmemory"})
	require.NoError(t, err)
	svc, err := application.NewService(application.Config{
		Distribution:         domain.DistributionTable{1: {10000}},
		SettlementLease:      time.Second,
		CreditInitialBackoff: time.Millisecond,
		CreditMaxBackoff:     time.Millisecond,
		CreditRetryHorizon:   time.Millisecond,
	}, repoManager, inmemoryledger.NewLedgerService(), lognotifier.NewNotifier(nil), nil, nil)
	require.NoError(t, err)

	s := &testServer{handler: httpservice.NewHandler(svc, "")}
	code := s.do(t, http.MethodPost, "/v1/rounds", "", map[string]interface{}{
		"winner_count": 1, "min_participants": 1, "base_countdown": "10s",
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	_, err = httpservice.NewAdminToken("", time.Minute)
	require.Error(t, err)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestServiceLifecycle(t *testing.T) {
	repoManager, err := db.NewService(db.ServiceConfig{DataStoreType: "inmemory"})
	require.NoError(t, err)
	appSvc, err := application.NewService(application.Config{
		Distribution:         domain.DistributionTable{1: {10000}},
		SettlementLease:      time.Second,
		CreditInitialBackoff: time.Millisecond,
		CreditMaxBackoff:     time.Millisecond,
		CreditRetryHorizon:   time.Millisecond,
	}, repoManager, inmemoryledger.NewLedgerService(), lognotifier.NewNotifier(nil), nil, nil)
	require.NoError(t, err)

	_, err = httpservice.NewService(httpservice.Config{Port: freePort(t)}, nil)
	require.Error(t, err)

	port := freePort(t)
	var svc service_interface.Service
	svc, err = httpservice.NewService(httpservice.Config{Port: port}, appSvc)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		// nolint
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func freePort(t *testing.T) uint32 {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	// nolint
	defer lis.Close()
	return uint32(lis.Addr().(*net.TCPAddr).Port)
}
