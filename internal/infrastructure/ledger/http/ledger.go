package httpledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lastword-games/roundd/internal/core/ports"
)

const (
	creditPath           = "/v1/credits"
	idempotencyKeyHeader = "Idempotency-Key"
	maxErrorBody         = 512
)

// client errors that say "try again later" rather than "never"
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:  true,
	http.StatusTooEarly:        true,
	http.StatusTooManyRequests: true,
}

type creditRequest struct {
	UserId         string `json:"user_id"`
	Amount         uint64 `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ledger struct {
	endpoint string
	client   *http.Client
}

// NewLedgerService returns a client of a remote wallet service exposing
// POST /v1/credits. A 409 reply means the key was already applied.
func NewLedgerService(baseUrl string, timeout time.Duration) (ports.LedgerService, error) {
	if _, err := url.ParseRequestURI(baseUrl); err != nil {
		return nil, fmt.Errorf("invalid ledger url: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid ledger timeout")
	}

	return &ledger{
		endpoint: strings.TrimSuffix(baseUrl, "/") + creditPath,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (l *ledger) Credit(
	ctx context.Context, userId string, amount uint64, idempotencyKey string,
) (bool, error) {
	body, err := json.Marshal(creditRequest{userId, amount, idempotencyKey})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyKeyHeader, idempotencyKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach ledger: %w", err)
	}
	// nolint
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusConflict:
		return true, nil
	case retryableStatus[resp.StatusCode]:
		return false, fmt.Errorf("ledger replied %d: %s", resp.StatusCode, readError(resp))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf(
			"%w: ledger replied %d: %s", ports.ErrPermanentCredit, resp.StatusCode, readError(resp),
		)
	default:
		return false, fmt.Errorf("ledger replied %d: %s", resp.StatusCode, readError(resp))
	}
}

func (l *ledger) Close() {
	l.client.CloseIdleConnections()
}

func readError(resp *http.Response) string {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(buf))
}
