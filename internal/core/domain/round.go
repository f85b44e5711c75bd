package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusUndefined RoundStatus = iota
	StatusScheduled
	StatusOpen
	StatusLive
	StatusEnding
	StatusSettled
	StatusCancelled
)

type RoundStatus int

func (s RoundStatus) String() string {
	switch s {
	case StatusScheduled:
		return "SCHEDULED"
	case StatusOpen:
		return "OPEN"
	case StatusLive:
		return "LIVE"
	case StatusEnding:
		return "ENDING"
	case StatusSettled:
		return "SETTLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNDEFINED"
	}
}

func (s RoundStatus) IsTerminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// RoundConfig is fixed at creation and never rewritten.
type RoundConfig struct {
	EntryFee           uint64
	MinParticipants    int
	WinnerCount        int
	BaseCountdown      time.Duration
	FinalStretch       time.Duration
	OpenDuration       time.Duration
	GraceWindow        time.Duration
	MaxGraceExtensions int
	AutoStart          bool
	PlatformCutBps     uint32
	Distribution       []uint32
}

func (c RoundConfig) Validate() error {
	if c.WinnerCount < 1 {
		return fmt.Errorf("%w: winner count must be at least 1", ErrInvalidConfig)
	}
	if len(c.Distribution) != c.WinnerCount {
		return fmt.Errorf(
			"%w: missing distribution for %d winners", ErrInvalidConfig, c.WinnerCount,
		)
	}
	if err := validateShares(c.WinnerCount, c.Distribution); err != nil {
		return err
	}
	if c.PlatformCutBps >= BasisPoints {
		return fmt.Errorf(
			"%w: platform cut must be lower than %d bps", ErrInvalidConfig, BasisPoints,
		)
	}
	if c.MinParticipants < 1 {
		return fmt.Errorf("%w: min participants must be at least 1", ErrInvalidConfig)
	}
	if c.BaseCountdown <= 0 {
		return fmt.Errorf("%w: base countdown must be positive", ErrInvalidConfig)
	}
	if c.FinalStretch < 0 || c.FinalStretch >= c.BaseCountdown {
		return fmt.Errorf(
			"%w: final stretch must be in range [0, base countdown)", ErrInvalidConfig,
		)
	}
	if c.OpenDuration < 0 {
		return fmt.Errorf("%w: open duration must not be negative", ErrInvalidConfig)
	}
	if c.MaxGraceExtensions < 0 {
		return fmt.Errorf("%w: max grace extensions must not be negative", ErrInvalidConfig)
	}
	if c.MaxGraceExtensions > 0 && c.GraceWindow <= 0 {
		return fmt.Errorf("%w: grace window must be positive", ErrInvalidConfig)
	}
	return nil
}

type Participant struct {
	UserId      string
	JoinedAt    time.Time
	IsSpectator bool
}

// Round is one game cycle. Revision is owned by the round store: it is the
// token every conditional write is guarded by.
type Round struct {
	Id                string
	Status            RoundStatus
	Config            RoundConfig
	ScheduledOpenAt   time.Time
	OpenedAt          time.Time
	LiveStartedAt     time.Time
	EndedAt           time.Time
	CountdownDeadline time.Time
	GraceExtensions   int
	Participants      []Participant
	PoolValue         uint64
	LastActors        LastActorLedger
	SettlementVersion uint64
	Disbursement      *Disbursement
	ManualReview      bool
	CancelReason      string
	Revision          uint64
	changes           []RoundEvent
}

func NewRound(id string, config RoundConfig, scheduledOpenAt time.Time) (*Round, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if scheduledOpenAt.IsZero() {
		return nil, fmt.Errorf("%w: missing scheduled open time", ErrInvalidConfig)
	}
	if id == "" {
		id = uuid.New().String()
	}
	config.Distribution = append([]uint32{}, config.Distribution...)

	return &Round{
		Id:              id,
		Status:          StatusScheduled,
		Config:          config,
		ScheduledOpenAt: scheduledOpenAt,
		Participants:    make([]Participant, 0),
		LastActors:      LastActorLedger{},
		changes:         make([]RoundEvent, 0),
	}, nil
}

// Events returns the events raised since the round was loaded.
func (r *Round) Events() []RoundEvent {
	return r.changes
}

func (r *Round) IsClaimed() bool {
	return r.SettlementVersion > 0
}

func (r *Round) IsTerminal() bool {
	return r.Status.IsTerminal()
}

func (r *Round) EligibleParticipants() int {
	count := 0
	for _, p := range r.Participants {
		if !p.IsSpectator {
			count++
		}
	}
	return count
}

func (r *Round) HasParticipant(userId string) bool {
	for _, p := range r.Participants {
		if p.UserId == userId {
			return true
		}
	}
	return false
}

func (r *Round) OpenDeadline() time.Time {
	if r.OpenedAt.IsZero() {
		return time.Time{}
	}
	extension := time.Duration(r.GraceExtensions) * r.Config.GraceWindow
	return r.OpenedAt.Add(r.Config.OpenDuration + extension)
}

func (r *Round) FinalStretchStartsAt() time.Time {
	if r.CountdownDeadline.IsZero() {
		return time.Time{}
	}
	return r.CountdownDeadline.Add(-r.Config.FinalStretch)
}

// HasPendingDisbursement returns true if the round owes credits that are not
// all confirmed yet.
func (r *Round) HasPendingDisbursement() bool {
	return r.Disbursement != nil && !r.Disbursement.Completed()
}

// DueAt returns the instant the next transition of the round becomes
// applicable, or the zero time if nothing is pending.
func (r *Round) DueAt() time.Time {
	switch r.Status {
	case StatusScheduled:
		return r.ScheduledOpenAt
	case StatusOpen:
		if r.canAutoStart() {
			return r.OpenedAt
		}
		return r.OpenDeadline()
	case StatusLive, StatusEnding:
		if r.IsClaimed() {
			return r.disbursementDueAt()
		}
		if r.Status == StatusLive && r.Config.FinalStretch > 0 {
			return r.FinalStretchStartsAt()
		}
		return r.CountdownDeadline
	case StatusCancelled:
		return r.disbursementDueAt()
	}
	return time.Time{}
}

// NextTransition tells which transition a tick at now has to apply.
func (r *Round) NextTransition(now time.Time) Transition {
	switch r.Status {
	case StatusScheduled:
		if !now.Before(r.ScheduledOpenAt) {
			return OpenTransition
		}
	case StatusOpen:
		if r.canAutoStart() {
			return GoLiveTransition
		}
		if now.Before(r.OpenDeadline()) {
			return NoTransition
		}
		if r.EligibleParticipants() >= r.Config.MinParticipants {
			return GoLiveTransition
		}
		if r.GraceExtensions < r.Config.MaxGraceExtensions {
			return ExtendOpenTransition
		}
		return CancelTransition
	case StatusLive, StatusEnding:
		if r.IsClaimed() {
			return r.disbursementTransition(now)
		}
		if !now.Before(r.CountdownDeadline) {
			return SettlementClaimTransition
		}
		if r.Status == StatusLive && r.Config.FinalStretch > 0 &&
			!now.Before(r.FinalStretchStartsAt()) {
			return FinalStretchTransition
		}
	case StatusCancelled:
		return r.disbursementTransition(now)
	}
	return NoTransition
}

func (r *Round) Join(userId string, isSpectator bool, now time.Time) error {
	if r.Status != StatusScheduled && r.Status != StatusOpen {
		return fmt.Errorf("%w: cannot join a round in status %s", ErrRoundClosed, r.Status)
	}
	if userId == "" {
		return fmt.Errorf("missing user id")
	}
	if r.HasParticipant(userId) {
		return ErrAlreadyJoined
	}

	r.Participants = append(r.Participants, Participant{
		UserId:      userId,
		JoinedAt:    now,
		IsSpectator: isSpectator,
	})
	if !isSpectator {
		r.PoolValue += r.Config.EntryFee
	}
	return nil
}

func (r *Round) Contribute(amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("contribution must be positive")
	}
	if r.IsTerminal() || r.IsClaimed() {
		return fmt.Errorf("%w: pool of round in status %s is frozen", ErrRoundClosed, r.Status)
	}
	r.PoolValue += amount
	return nil
}

func (r *Round) Open(now time.Time) error {
	if r.Status != StatusScheduled || now.Before(r.ScheduledOpenAt) {
		return r.invalidTransition(OpenTransition)
	}

	r.Status = StatusOpen
	r.OpenedAt = now
	r.raise(RoundOpened{Id: r.Id, Timestamp: now, Deadline: r.OpenDeadline()})
	return nil
}

func (r *Round) ExtendOpen(now time.Time) error {
	if r.NextTransition(now) != ExtendOpenTransition {
		return r.invalidTransition(ExtendOpenTransition)
	}

	r.GraceExtensions++
	r.raise(OpenExtended{
		Id:           r.Id,
		Extensions:   r.GraceExtensions,
		Participants: r.EligibleParticipants(),
		Deadline:     r.OpenDeadline(),
	})
	return nil
}

func (r *Round) GoLive(now time.Time) error {
	if r.NextTransition(now) != GoLiveTransition {
		return r.invalidTransition(GoLiveTransition)
	}

	r.Status = StatusLive
	r.LiveStartedAt = now
	r.CountdownDeadline = now.Add(r.Config.BaseCountdown)
	r.raise(RoundWentLive{
		Id:           r.Id,
		Timestamp:    now,
		Participants: r.EligibleParticipants(),
		Deadline:     r.CountdownDeadline,
	})
	return nil
}

// Cancel moves a round that never went live to its terminal cancelled state
// and freezes one refund per paying participant.
func (r *Round) Cancel(now time.Time, reason string, lease time.Duration) error {
	if r.Status != StatusScheduled && r.Status != StatusOpen {
		return r.invalidTransition(CancelTransition)
	}

	disbursement := &Disbursement{
		Kind:      RefundDisbursement,
		Pool:      r.PoolValue,
		Payouts:   make([]Payout, 0, len(r.Participants)),
		ClaimedAt: now,
	}
	if r.Config.EntryFee > 0 {
		for _, p := range r.Participants {
			if p.IsSpectator {
				continue
			}
			disbursement.Payouts = append(disbursement.Payouts, Payout{
				Rank:           len(disbursement.Payouts) + 1,
				UserId:         p.UserId,
				Amount:         r.Config.EntryFee,
				IdempotencyKey: IdempotencyKey(RefundDisbursement, r.Id, p.UserId),
				Status:         PayoutPending,
			})
		}
	}
	disbursement.NetPool = disbursement.Total()
	disbursement.Retained = r.PoolValue - disbursement.NetPool
	disbursement.lease(now, lease)
	if len(disbursement.Payouts) == 0 {
		disbursement.CompletedAt = now
	}

	r.Status = StatusCancelled
	r.CancelReason = reason
	r.EndedAt = now
	r.CountdownDeadline = time.Time{}
	r.Disbursement = disbursement
	r.raise(RoundCancelled{Id: r.Id, Reason: reason})
	return nil
}

func (r *Round) EnterFinalStretch(now time.Time) error {
	if r.NextTransition(now) != FinalStretchTransition {
		return r.invalidTransition(FinalStretchTransition)
	}

	r.Status = StatusEnding
	r.raise(FinalStretchStarted{Id: r.Id, Deadline: r.CountdownDeadline})
	return nil
}

// KeepAlive applies a qualifying action by actorId happened at ts. The
// deadline only ever moves forward. Accepted only while the countdown is
// running and settlement has not been claimed.
func (r *Round) KeepAlive(actorId string, ts time.Time) (bool, KeepAliveRejection) {
	switch r.Status {
	case StatusUndefined, StatusScheduled, StatusOpen:
		return false, KeepAliveTooEarly
	case StatusLive, StatusEnding:
		if r.IsClaimed() {
			return false, KeepAliveTooLate
		}
	default:
		return false, KeepAliveTooLate
	}

	if deadline := ts.Add(r.Config.BaseCountdown); deadline.After(r.CountdownDeadline) {
		r.CountdownDeadline = deadline
	}
	r.LastActors = r.LastActors.Push(actorId, r.Config.WinnerCount)
	r.raise(CountdownReset{Id: r.Id, ActorId: actorId, Deadline: r.CountdownDeadline})
	return true, ""
}

// ClaimSettlement bumps the settlement version and freezes pool, winners and
// prizes. Persisting the result is the idempotency fence of the round.
func (r *Round) ClaimSettlement(now time.Time, lease time.Duration) error {
	if r.NextTransition(now) != SettlementClaimTransition {
		return r.invalidTransition(SettlementClaimTransition)
	}

	winners := r.LastActors.Winners(r.Config.WinnerCount)
	split, err := SplitPrize(
		r.PoolValue, r.Config.PlatformCutBps, r.Config.Distribution, len(winners),
	)
	if err != nil {
		return err
	}

	disbursement := &Disbursement{
		Kind:      PrizeDisbursement,
		Pool:      split.Pool,
		NetPool:   split.NetPool,
		Retained:  split.Retained,
		Winners:   winners,
		Payouts:   make([]Payout, 0, len(winners)),
		ClaimedAt: now,
	}
	for i, winner := range winners {
		status := PayoutPending
		if split.Amounts[i] == 0 {
			status = PayoutCredited
		}
		disbursement.Payouts = append(disbursement.Payouts, Payout{
			Rank:           i + 1,
			UserId:         winner,
			Amount:         split.Amounts[i],
			IdempotencyKey: IdempotencyKey(PrizeDisbursement, r.Id, winner),
			Status:         status,
		})
	}
	disbursement.lease(now, lease)

	r.Status = StatusEnding
	r.SettlementVersion++
	r.Disbursement = disbursement
	r.raise(SettlementClaimed{Id: r.Id, Version: r.SettlementVersion, Pool: split.Pool})
	return nil
}

// RenewLease hands the disbursement of a round whose previous holder
// vanished over to a new caller.
func (r *Round) RenewLease(now time.Time, lease time.Duration) error {
	if r.NextTransition(now) != DisbursementResumeTransition {
		return r.invalidTransition(DisbursementResumeTransition)
	}
	r.Disbursement.lease(now, lease)
	return nil
}

func (r *Round) RecordPayouts(results []PayoutResult) error {
	if !r.HasPendingDisbursement() {
		return fmt.Errorf("%w: round has no pending disbursement", ErrInvalidTransition)
	}
	r.Disbursement.apply(results)
	return nil
}

// CompleteDisbursement closes a disbursement once every payout is resolved.
// For prizes this is the transition to settled.
func (r *Round) CompleteDisbursement(now time.Time) error {
	if !r.HasPendingDisbursement() || !r.Disbursement.Resolved() {
		return fmt.Errorf("%w: disbursement has unresolved payouts", ErrInvalidTransition)
	}

	d := r.Disbursement
	d.CompletedAt = now
	r.ManualReview = false

	users := make([]string, 0, len(d.Payouts))
	amounts := make([]uint64, 0, len(d.Payouts))
	failed := make([]string, 0)
	for _, p := range d.Payouts {
		users = append(users, p.UserId)
		amounts = append(amounts, p.Amount)
		if p.Status == PayoutFailed {
			failed = append(failed, p.UserId)
		}
	}

	if d.Kind == RefundDisbursement {
		r.raise(RefundsIssued{Id: r.Id, Users: users, Amounts: amounts, Failed: failed})
		return nil
	}

	r.Status = StatusSettled
	r.EndedAt = now
	r.CountdownDeadline = time.Time{}
	r.raise(RoundSettled{
		Id:       r.Id,
		Winners:  users,
		Shares:   amounts,
		Retained: d.Retained,
		Failed:   failed,
	})
	return nil
}

// FlagForReview parks a disbursement whose payouts could not be confirmed.
// The round is not picked up by ticks until resumed.
func (r *Round) FlagForReview() error {
	if !r.HasPendingDisbursement() {
		return fmt.Errorf("%w: round has no pending disbursement", ErrInvalidTransition)
	}

	r.ManualReview = true
	for _, p := range r.Disbursement.Payouts {
		if p.Status != PayoutFlagged {
			continue
		}
		r.raise(PayoutFlaggedEvent{
			Id:     r.Id,
			Kind:   r.Disbursement.Kind,
			UserId: p.UserId,
			Amount: p.Amount,
			Error:  p.Error,
		})
	}
	return nil
}

// ResumeReview puts flagged payouts back in the queue after an operator
// looked at them.
func (r *Round) ResumeReview(now time.Time, lease time.Duration) error {
	if !r.ManualReview || !r.HasPendingDisbursement() {
		return ErrNothingToResume
	}

	for i, p := range r.Disbursement.Payouts {
		if p.Status == PayoutFlagged {
			r.Disbursement.Payouts[i].Status = PayoutPending
		}
	}
	r.ManualReview = false
	r.Disbursement.lease(now, lease)
	return nil
}

func (r *Round) canAutoStart() bool {
	return r.Config.AutoStart &&
		r.EligibleParticipants() >= r.Config.MinParticipants
}

func (r *Round) disbursementDueAt() time.Time {
	if !r.HasPendingDisbursement() || r.ManualReview {
		return time.Time{}
	}
	return r.Disbursement.LeaseExpiresAt
}

func (r *Round) disbursementTransition(now time.Time) Transition {
	due := r.disbursementDueAt()
	if due.IsZero() || now.Before(due) {
		return NoTransition
	}
	return DisbursementResumeTransition
}

func (r *Round) invalidTransition(t Transition) error {
	return fmt.Errorf("%w: %s not applicable to round %s in status %s",
		ErrInvalidTransition, t, r.Id, r.Status)
}

func (r *Round) raise(event RoundEvent) {
	if r.changes == nil {
		r.changes = make([]RoundEvent, 0)
	}
	r.changes = append(r.changes, event)
}
