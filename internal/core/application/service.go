package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// a tick walks at most Scheduled -> Open -> Live -> Ending -> claim, the
// bound only protects against a misbehaving store.
const maxTransitionsPerTick = 8

const defaultCancelReason = "min participants not reached"

type service struct {
	// services
	repoManager ports.RepoManager
	ledger      ports.LedgerService
	notifier    ports.Notifier
	scheduler   ports.SchedulerService
	clock       clockwork.Clock

	// config
	platformCutBps       uint32
	distribution         domain.DistributionTable
	settlementLease      time.Duration
	creditInitialBackoff time.Duration
	creditMaxBackoff     time.Duration
	creditRetryHorizon   time.Duration
	keepAliveMaxRetries  int
	tickInterval         time.Duration
	tickConcurrency      int
}

func NewService(
	cfg Config,
	repoManager ports.RepoManager,
	ledger ports.LedgerService,
	notifier ports.Notifier,
	scheduler ports.SchedulerService,
	clock clockwork.Clock,
) (Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if ledger == nil {
		return nil, fmt.Errorf("missing ledger service")
	}
	if notifier == nil {
		return nil, fmt.Errorf("missing notifier")
	}
	if err := cfg.Distribution.Validate(); err != nil {
		return nil, err
	}
	if cfg.PlatformCutBps >= domain.BasisPoints {
		return nil, fmt.Errorf("platform cut must be lower than %d bps", domain.BasisPoints)
	}
	if cfg.SettlementLease <= 0 {
		return nil, fmt.Errorf("settlement lease must be positive")
	}
	if cfg.CreditInitialBackoff <= 0 || cfg.CreditMaxBackoff < cfg.CreditInitialBackoff {
		return nil, fmt.Errorf("invalid credit backoff range")
	}
	if cfg.CreditRetryHorizon <= 0 {
		return nil, fmt.Errorf("credit retry horizon must be positive")
	}
	// the holder of a live lease must be able to finish its retries
	if cfg.SettlementLease <= cfg.CreditRetryHorizon {
		return nil, fmt.Errorf(
			"settlement lease %s must outlast the credit retry horizon %s",
			cfg.SettlementLease, cfg.CreditRetryHorizon,
		)
	}
	if cfg.KeepAliveMaxRetries <= 0 {
		cfg.KeepAliveMaxRetries = 1
	}
	if cfg.TickConcurrency <= 0 {
		cfg.TickConcurrency = 1
	}
	if scheduler != nil && cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &service{
		repoManager:          repoManager,
		ledger:               ledger,
		notifier:             notifier,
		scheduler:            scheduler,
		clock:                clock,
		platformCutBps:       cfg.PlatformCutBps,
		distribution:         cfg.Distribution,
		settlementLease:      cfg.SettlementLease,
		creditInitialBackoff: cfg.CreditInitialBackoff,
		creditMaxBackoff:     cfg.CreditMaxBackoff,
		creditRetryHorizon:   cfg.CreditRetryHorizon,
		keepAliveMaxRetries:  cfg.KeepAliveMaxRetries,
		tickInterval:         cfg.TickInterval,
		tickConcurrency:      cfg.TickConcurrency,
	}, nil
}

func (s *service) Start() error {
	if s.scheduler == nil {
		log.Info("no scheduler configured, due ticks must be triggered externally")
		return nil
	}

	log.Debug("starting scheduler...")
	s.scheduler.Start()
	return s.scheduler.ScheduleEvery(s.tickInterval, s.runScheduledTicks)
}

func (s *service) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		log.Debug("stopped scheduler")
	}
	s.notifier.Close()
	log.Debug("closed notifier")
	s.ledger.Close()
	log.Debug("closed connection to ledger")
	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) CreateRound(
	ctx context.Context, req CreateRoundRequest,
) (*RoundSnapshot, error) {
	shares, ok := s.distribution.Get(req.WinnerCount)
	if !ok {
		return nil, fmt.Errorf(
			"%w: no prize distribution for %d winners", domain.ErrInvalidConfig, req.WinnerCount,
		)
	}
	scheduledOpenAt := req.ScheduledOpenAt
	if scheduledOpenAt.IsZero() {
		scheduledOpenAt = s.clock.Now()
	}

	round, err := domain.NewRound(req.Id, domain.RoundConfig{
		EntryFee:           req.EntryFee,
		MinParticipants:    req.MinParticipants,
		WinnerCount:        req.WinnerCount,
		BaseCountdown:      req.BaseCountdown,
		FinalStretch:       req.FinalStretch,
		OpenDuration:       req.OpenDuration,
		GraceWindow:        req.GraceWindow,
		MaxGraceExtensions: req.MaxGraceExtensions,
		AutoStart:          req.AutoStart,
		PlatformCutBps:     s.platformCutBps,
		Distribution:       shares,
	}, scheduledOpenAt.UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repoManager.Rounds().AddRound(ctx, round); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round_id":     round.Id,
		"winner_count": round.Config.WinnerCount,
		"opens_at":     round.ScheduledOpenAt,
	}).Info("round scheduled")

	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) GetRound(ctx context.Context, roundId string) (*RoundSnapshot, error) {
	round, err := s.repoManager.Rounds().GetRound(ctx, roundId)
	if err != nil {
		return nil, err
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) JoinRound(
	ctx context.Context, roundId, userId string, isSpectator bool,
) (*RoundSnapshot, error) {
	if userId == "" {
		return nil, invalidArgument("missing user id")
	}

	round, err := s.updateRound(ctx, roundId, "join", func(r *domain.Round) error {
		return r.Join(userId, isSpectator, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) ContributeToPool(
	ctx context.Context, roundId string, amount uint64,
) (*RoundSnapshot, error) {
	if amount == 0 {
		return nil, invalidArgument("contribution must be positive")
	}

	round, err := s.updateRound(ctx, roundId, "contribute", func(r *domain.Round) error {
		return r.Contribute(amount)
	})
	if err != nil {
		return nil, err
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) SubmitKeepAlive(
	ctx context.Context, roundId, actorId string,
) (*KeepAliveResult, error) {
	return s.RegisterKeepAlive(ctx, roundId, actorId, s.clock.Now())
}

func (s *service) RegisterKeepAlive(
	ctx context.Context, roundId, actorId string, ts time.Time,
) (*KeepAliveResult, error) {
	if actorId == "" {
		return nil, invalidArgument("missing actor id")
	}

	repo := s.repoManager.Rounds()
	for i := 0; i < s.keepAliveMaxRetries; i++ {
		round, err := repo.GetRound(ctx, roundId)
		if err != nil {
			return nil, err
		}

		accepted, reason := round.KeepAlive(actorId, ts)
		if !accepted {
			keepAlivesTotal.WithLabelValues(string(reason)).Inc()
			log.WithFields(log.Fields{
				"round_id": roundId,
				"actor_id": actorId,
				"status":   round.Status,
			}).Debugf("keep-alive rejected: %s", reason)
			return &KeepAliveResult{Reason: string(reason)}, nil
		}

		if err := repo.UpdateRound(ctx, round); err != nil {
			if errors.Is(err, domain.ErrStaleRound) {
				staleGuardsTotal.WithLabelValues("keepalive").Inc()
				continue
			}
			return nil, err
		}

		keepAlivesTotal.WithLabelValues("accepted").Inc()
		s.publishEvents(ctx, round)
		return &KeepAliveResult{Accepted: true, Deadline: round.CountdownDeadline}, nil
	}

	keepAlivesTotal.WithLabelValues(string(domain.KeepAliveContended)).Inc()
	log.WithFields(log.Fields{
		"round_id": roundId,
		"actor_id": actorId,
	}).Warnf("keep-alive dropped after %d contended attempts", s.keepAliveMaxRetries)
	return &KeepAliveResult{Reason: string(domain.KeepAliveContended)}, nil
}

func (s *service) Tick(ctx context.Context, roundId string) (*RoundSnapshot, error) {
	round, _, err := s.tick(ctx, roundId)
	if err != nil {
		return nil, err
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) ScanDue(ctx context.Context, now time.Time) ([]string, error) {
	return s.repoManager.Rounds().GetDueRounds(ctx, now)
}

// RunDueTicks ticks every round due at now, the current time if zero. A
// round whose tick fails is logged and left for the next run.
func (s *service) RunDueTicks(ctx context.Context, now time.Time) (*TickSummary, error) {
	if now.IsZero() {
		now = s.clock.Now()
	}
	roundIds, err := s.ScanDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to scan due rounds: %w", err)
	}

	var ticked, settled atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.tickConcurrency)
	for _, roundId := range roundIds {
		roundId := roundId
		g.Go(func() error {
			_, settledHere, err := s.tick(ctx, roundId)
			if err != nil {
				log.WithError(err).WithField("round_id", roundId).Warn("failed to tick round")
				return nil
			}
			ticked.Add(1)
			if settledHere {
				settled.Add(1)
			}
			return nil
		})
	}
	// nolint
	g.Wait()

	return &TickSummary{Ticked: int(ticked.Load()), Settled: int(settled.Load())}, nil
}

func (s *service) CancelRound(
	ctx context.Context, roundId, reason string,
) (*RoundSnapshot, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}

	round, err := s.updateRound(ctx, roundId, "cancel", func(r *domain.Round) error {
		return r.Cancel(s.clock.Now(), reason, s.settlementLease)
	})
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(domain.CancelTransition.String()).Inc()
	log.WithFields(log.Fields{
		"round_id": roundId,
		"reason":   reason,
	}).Info("round cancelled")

	if round.HasPendingDisbursement() {
		if round, err = s.disburse(ctx, round.Id); err != nil {
			return nil, err
		}
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

func (s *service) ResumeDisbursement(ctx context.Context, roundId string) (*RoundSnapshot, error) {
	round, err := s.updateRound(ctx, roundId, "resume", func(r *domain.Round) error {
		return r.ResumeReview(s.clock.Now(), s.settlementLease)
	})
	if err != nil {
		return nil, err
	}
	log.WithField("round_id", roundId).Info("disbursement resumed after review")

	if round, err = s.disburse(ctx, round.Id); err != nil {
		return nil, err
	}
	return newRoundSnapshot(round, s.clock.Now()), nil
}

// tick applies every transition due for the round, one conditional write
// each. Losing a write to a concurrent caller ends the tick with the state
// that caller left. The returned flag is true only if this call committed
// the settlement.
func (s *service) tick(ctx context.Context, roundId string) (*domain.Round, bool, error) {
	timer := prometheus.NewTimer(tickDuration)
	defer timer.ObserveDuration()

	repo := s.repoManager.Rounds()
	for i := 0; i < maxTransitionsPerTick; i++ {
		round, err := repo.GetRound(ctx, roundId)
		if err != nil {
			return nil, false, err
		}

		now := s.clock.Now()
		transition := round.NextTransition(now)
		if transition == domain.NoTransition {
			return round, false, nil
		}

		if err := s.applyTransition(round, transition, now); err != nil {
			return nil, false, err
		}

		if err := repo.UpdateRound(ctx, round); err != nil {
			if !errors.Is(err, domain.ErrStaleRound) {
				return nil, false, err
			}
			staleGuardsTotal.WithLabelValues("tick").Inc()
			log.WithFields(log.Fields{
				"round_id":   roundId,
				"transition": transition,
			}).Debug("transition already applied by another caller")

			current, err := repo.GetRound(ctx, roundId)
			return current, false, err
		}

		transitionsTotal.WithLabelValues(transition.String()).Inc()
		log.WithFields(log.Fields{
			"round_id": roundId,
			"status":   round.Status,
		}).Infof("applied %s transition", transition)
		s.publishEvents(ctx, round)

		if round.HasPendingDisbursement() && (transition == domain.SettlementClaimTransition ||
			transition == domain.DisbursementResumeTransition ||
			transition == domain.CancelTransition) {
			result, err := s.disburse(ctx, roundId)
			if err != nil {
				return nil, false, err
			}
			settledHere := result.Status == domain.StatusSettled &&
				result.Disbursement.Kind == domain.PrizeDisbursement
			return result, settledHere, nil
		}
	}

	round, err := repo.GetRound(ctx, roundId)
	return round, false, err
}

func (s *service) applyTransition(
	round *domain.Round, transition domain.Transition, now time.Time,
) error {
	switch transition {
	case domain.OpenTransition:
		return round.Open(now)
	case domain.GoLiveTransition:
		return round.GoLive(now)
	case domain.ExtendOpenTransition:
		return round.ExtendOpen(now)
	case domain.CancelTransition:
		return round.Cancel(now, defaultCancelReason, s.settlementLease)
	case domain.FinalStretchTransition:
		return round.EnterFinalStretch(now)
	case domain.SettlementClaimTransition:
		return round.ClaimSettlement(now, s.settlementLease)
	case domain.DisbursementResumeTransition:
		log.WithField("round_id", round.Id).Warn("disbursement lease expired, taking over")
		return round.RenewLease(now, s.settlementLease)
	default:
		return fmt.Errorf("unknown transition %d", transition)
	}
}

// updateRound retries fn against fresh copies of the round until its write
// lands or the retry budget is exhausted.
func (s *service) updateRound(
	ctx context.Context, roundId, op string, fn func(*domain.Round) error,
) (*domain.Round, error) {
	repo := s.repoManager.Rounds()
	for i := 0; i < s.keepAliveMaxRetries; i++ {
		round, err := repo.GetRound(ctx, roundId)
		if err != nil {
			return nil, err
		}
		if err := fn(round); err != nil {
			return nil, err
		}
		if err := repo.UpdateRound(ctx, round); err != nil {
			if errors.Is(err, domain.ErrStaleRound) {
				staleGuardsTotal.WithLabelValues(op).Inc()
				continue
			}
			return nil, err
		}
		s.publishEvents(ctx, round)
		return round, nil
	}
	return nil, errContended{roundId, op}
}

func (s *service) publishEvents(ctx context.Context, round *domain.Round) {
	for _, event := range round.Events() {
		if err := s.notifier.Publish(ctx, event); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"round_id": round.Id,
				"event":    event.GetType(),
			}).Warn("failed to publish event")
		}
	}
}

func (s *service) runScheduledTicks() {
	summary, err := s.RunDueTicks(context.Background(), s.clock.Now())
	if err != nil {
		log.WithError(err).Warn("scheduled tick run failed")
		return
	}
	if summary.Ticked > 0 {
		log.Debugf("ticked %d rounds, settled %d", summary.Ticked, summary.Settled)
	}
}
