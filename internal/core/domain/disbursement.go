package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DisbursementKind string

const (
	PrizeDisbursement  DisbursementKind = "prizes"
	RefundDisbursement DisbursementKind = "refunds"
)

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutCredited PayoutStatus = "credited"
	// PayoutFailed marks a payout the ledger refused permanently, left for
	// manual reconciliation.
	PayoutFailed PayoutStatus = "failed"
	// PayoutFlagged marks a payout whose transient failures outlasted the
	// retry horizon.
	PayoutFlagged PayoutStatus = "flagged"
)

var idempotencyNamespace = uuid.MustParse("6f1c2f53-7a53-4d7e-9f55-4b8d7c3a1e20")

// IdempotencyKey derives the ledger key of a payout. The same round, kind and
// user always map to the same key.
func IdempotencyKey(kind DisbursementKind, roundId, userId string) string {
	name := fmt.Sprintf("%s/%s/%s", kind, roundId, userId)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

type Payout struct {
	Rank           int
	UserId         string
	Amount         uint64
	IdempotencyKey string
	Status         PayoutStatus
	Attempts       int
	Error          string
}

func (p Payout) Resolved() bool {
	return p.Status == PayoutCredited || p.Status == PayoutFailed
}

// PayoutResult is what the resolver learned about a payout while crediting it.
type PayoutResult struct {
	IdempotencyKey string
	Status         PayoutStatus
	Attempts       int
	Error          string
}

// Disbursement is the frozen set of credits a captured round owes: prizes for
// a settling round, refunds for a cancelled one.
type Disbursement struct {
	Kind           DisbursementKind
	Pool           uint64
	NetPool        uint64
	Retained       uint64
	Winners        []string
	Payouts        []Payout
	ClaimedAt      time.Time
	LeaseExpiresAt time.Time
	Runs           int
	CompletedAt    time.Time
}

func (d *Disbursement) Completed() bool {
	return !d.CompletedAt.IsZero()
}

// Resolved returns true once every payout is either credited or failed for good.
func (d *Disbursement) Resolved() bool {
	for _, p := range d.Payouts {
		if !p.Resolved() {
			return false
		}
	}
	return true
}

func (d *Disbursement) PendingPayouts() []Payout {
	pending := make([]Payout, 0, len(d.Payouts))
	for _, p := range d.Payouts {
		if !p.Resolved() {
			pending = append(pending, p)
		}
	}
	return pending
}

func (d *Disbursement) FailedPayouts() []Payout {
	failed := make([]Payout, 0)
	for _, p := range d.Payouts {
		if p.Status == PayoutFailed {
			failed = append(failed, p)
		}
	}
	return failed
}

func (d *Disbursement) FlaggedPayouts() []Payout {
	flagged := make([]Payout, 0)
	for _, p := range d.Payouts {
		if p.Status == PayoutFlagged {
			flagged = append(flagged, p)
		}
	}
	return flagged
}

// Total is the sum of all payouts, whatever their status.
func (d *Disbursement) Total() uint64 {
	var total uint64
	for _, p := range d.Payouts {
		total += p.Amount
	}
	return total
}

func (d *Disbursement) apply(results []PayoutResult) {
	byKey := make(map[string]PayoutResult, len(results))
	for _, r := range results {
		byKey[r.IdempotencyKey] = r
	}
	for i, p := range d.Payouts {
		r, ok := byKey[p.IdempotencyKey]
		if !ok || p.Resolved() {
			continue
		}
		d.Payouts[i].Status = r.Status
		d.Payouts[i].Attempts += r.Attempts
		d.Payouts[i].Error = r.Error
	}
}

func (d *Disbursement) lease(now time.Time, duration time.Duration) {
	d.LeaseExpiresAt = now.Add(duration)
	d.Runs++
}
