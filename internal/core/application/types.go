package application

import (
	"context"
	"time"

	"github.com/lastword-games/roundd/internal/core/domain"
)

type Service interface {
	Start() error
	Stop()
	CreateRound(ctx context.Context, req CreateRoundRequest) (*RoundSnapshot, error)
	GetRound(ctx context.Context, roundId string) (*RoundSnapshot, error)
	JoinRound(
		ctx context.Context, roundId, userId string, isSpectator bool,
	) (*RoundSnapshot, error)
	ContributeToPool(ctx context.Context, roundId string, amount uint64) (*RoundSnapshot, error)
	// RegisterKeepAlive applies a qualifying action that happened at ts.
	RegisterKeepAlive(
		ctx context.Context, roundId, actorId string, ts time.Time,
	) (*KeepAliveResult, error)
	// SubmitKeepAlive is RegisterKeepAlive stamped with the server clock.
	SubmitKeepAlive(ctx context.Context, roundId, actorId string) (*KeepAliveResult, error)
	Tick(ctx context.Context, roundId string) (*RoundSnapshot, error)
	ScanDue(ctx context.Context, now time.Time) ([]string, error)
	RunDueTicks(ctx context.Context, now time.Time) (*TickSummary, error)
	CancelRound(ctx context.Context, roundId, reason string) (*RoundSnapshot, error)
	ResumeDisbursement(ctx context.Context, roundId string) (*RoundSnapshot, error)
}

type Config struct {
	PlatformCutBps       uint32
	Distribution         domain.DistributionTable
	SettlementLease      time.Duration
	CreditInitialBackoff time.Duration
	CreditMaxBackoff     time.Duration
	CreditRetryHorizon   time.Duration
	KeepAliveMaxRetries  int
	TickInterval         time.Duration
	TickConcurrency      int
}

type CreateRoundRequest struct {
	Id                 string
	EntryFee           uint64
	MinParticipants    int
	WinnerCount        int
	BaseCountdown      time.Duration
	FinalStretch       time.Duration
	OpenDuration       time.Duration
	GraceWindow        time.Duration
	MaxGraceExtensions int
	AutoStart          bool
	ScheduledOpenAt    time.Time
}

type KeepAliveResult struct {
	Accepted bool
	Reason   string
	Deadline time.Time
}

type TickSummary struct {
	Ticked  int
	Settled int
}

type PayoutSnapshot struct {
	Rank     int
	UserId   string
	Amount   uint64
	Status   string
	Attempts int
	Error    string
}

type DisbursementSnapshot struct {
	Kind      string
	Pool      uint64
	NetPool   uint64
	Retained  uint64
	Payouts   []PayoutSnapshot
	Completed bool
}

type RoundSnapshot struct {
	Id                string
	Status            string
	EntryFee          uint64
	MinParticipants   int
	WinnerCount       int
	Participants      int
	Spectators        int
	PoolValue         uint64
	ScheduledOpenAt   time.Time
	OpenedAt          time.Time
	LiveStartedAt     time.Time
	EndedAt           time.Time
	OpenDeadline      time.Time
	CountdownDeadline time.Time
	Remaining         time.Duration
	GraceExtensions   int
	LastActors        []string
	SettlementVersion uint64
	ManualReview      bool
	CancelReason      string
	Disbursement      *DisbursementSnapshot
	Revision          uint64
}

func newRoundSnapshot(round *domain.Round, now time.Time) *RoundSnapshot {
	eligible := round.EligibleParticipants()
	snapshot := &RoundSnapshot{
		Id:                round.Id,
		Status:            round.Status.String(),
		EntryFee:          round.Config.EntryFee,
		MinParticipants:   round.Config.MinParticipants,
		WinnerCount:       round.Config.WinnerCount,
		Participants:      eligible,
		Spectators:        len(round.Participants) - eligible,
		PoolValue:         round.PoolValue,
		ScheduledOpenAt:   round.ScheduledOpenAt,
		OpenedAt:          round.OpenedAt,
		LiveStartedAt:     round.LiveStartedAt,
		EndedAt:           round.EndedAt,
		CountdownDeadline: round.CountdownDeadline,
		GraceExtensions:   round.GraceExtensions,
		LastActors:        append([]string{}, round.LastActors...),
		SettlementVersion: round.SettlementVersion,
		ManualReview:      round.ManualReview,
		CancelReason:      round.CancelReason,
		Revision:          round.Revision,
	}
	if round.Status == domain.StatusOpen {
		snapshot.OpenDeadline = round.OpenDeadline()
	}
	if !round.CountdownDeadline.IsZero() && round.CountdownDeadline.After(now) {
		snapshot.Remaining = round.CountdownDeadline.Sub(now)
	}

	if d := round.Disbursement; d != nil {
		payouts := make([]PayoutSnapshot, 0, len(d.Payouts))
		for _, p := range d.Payouts {
			payouts = append(payouts, PayoutSnapshot{
				Rank:     p.Rank,
				UserId:   p.UserId,
				Amount:   p.Amount,
				Status:   string(p.Status),
				Attempts: p.Attempts,
				Error:    p.Error,
			})
		}
		snapshot.Disbursement = &DisbursementSnapshot{
			Kind:      string(d.Kind),
			Pool:      d.Pool,
			NetPool:   d.NetPool,
			Retained:  d.Retained,
			Payouts:   payouts,
			Completed: d.Completed(),
		}
	}
	return snapshot
}
