package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/lastword-games/roundd/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxCommitAttempts = 5

// disburse credits every unresolved payout of the round frozen disbursement
// and commits the outcome. Only the holder of the disbursement lease calls
// this; a replay after a crash is safe because credits are keyed.
func (s *service) disburse(ctx context.Context, roundId string) (*domain.Round, error) {
	// money must keep moving even if the caller that triggered the tick goes away
	ctx = context.WithoutCancel(ctx)

	round, err := s.repoManager.Rounds().GetRound(ctx, roundId)
	if err != nil {
		return nil, err
	}
	if !round.HasPendingDisbursement() || round.ManualReview {
		return round, nil
	}

	kind := round.Disbursement.Kind
	pending := round.Disbursement.PendingPayouts()
	results := make([]domain.PayoutResult, len(pending))

	g := new(errgroup.Group)
	for i, payout := range pending {
		i, payout := i, payout
		g.Go(func() error {
			results[i] = s.credit(ctx, roundId, kind, payout)
			return nil
		})
	}
	// nolint
	g.Wait()

	return s.commitDisbursement(ctx, roundId, results)
}

func (s *service) credit(
	ctx context.Context, roundId string, kind domain.DisbursementKind, payout domain.Payout,
) domain.PayoutResult {
	logger := log.WithFields(log.Fields{
		"round_id": roundId,
		"kind":     kind,
		"user_id":  payout.UserId,
		"payout":   payout.Amount,
	})

	attempts := 0
	operation := func() error {
		attempts++
		applied, err := s.ledger.Credit(ctx, payout.UserId, payout.Amount, payout.IdempotencyKey)
		if err != nil {
			if errors.Is(err, ports.ErrPermanentCredit) {
				return backoff.Permanent(err)
			}
			return err
		}
		if !applied {
			return fmt.Errorf("ledger did not apply credit %s", payout.IdempotencyKey)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.WithError(err).Warnf("credit failed, retrying in %s", next)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(s.newCreditBackOff(), ctx), notify)

	result := domain.PayoutResult{
		IdempotencyKey: payout.IdempotencyKey,
		Attempts:       attempts,
	}
	switch {
	case err == nil:
		result.Status = domain.PayoutCredited
		logger.Debug("payout credited")
	case errors.Is(err, ports.ErrPermanentCredit):
		result.Status = domain.PayoutFailed
		result.Error = err.Error()
		logger.WithError(err).Warn("payout refused by ledger, left for reconciliation")
	default:
		result.Status = domain.PayoutFlagged
		result.Error = err.Error()
		logger.WithError(err).Errorf("payout still failing after %d attempts, flagged", attempts)
	}
	creditsTotal.WithLabelValues(string(kind), string(result.Status)).Inc()
	return result
}

func (s *service) newCreditBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.creditInitialBackoff
	b.MaxInterval = s.creditMaxBackoff
	b.MaxElapsedTime = s.creditRetryHorizon
	b.Reset()
	return b
}

// commitDisbursement records the payout results. A fully resolved
// disbursement completes, settling the round for prizes; anything else parks
// the round for manual review.
func (s *service) commitDisbursement(
	ctx context.Context, roundId string, results []domain.PayoutResult,
) (*domain.Round, error) {
	repo := s.repoManager.Rounds()
	for i := 0; i < maxCommitAttempts; i++ {
		round, err := repo.GetRound(ctx, roundId)
		if err != nil {
			return nil, err
		}
		if !round.HasPendingDisbursement() {
			return round, nil
		}

		if err := round.RecordPayouts(results); err != nil {
			return nil, err
		}
		if round.Disbursement.Resolved() {
			err = round.CompleteDisbursement(s.clock.Now())
		} else {
			err = round.FlagForReview()
		}
		if err != nil {
			return nil, err
		}

		if err := repo.UpdateRound(ctx, round); err != nil {
			if errors.Is(err, domain.ErrStaleRound) {
				staleGuardsTotal.WithLabelValues("disbursement").Inc()
				continue
			}
			return nil, err
		}

		s.logDisbursement(round)
		s.publishEvents(ctx, round)
		return round, nil
	}
	return nil, errContended{roundId, "disbursement"}
}

func (s *service) logDisbursement(round *domain.Round) {
	d := round.Disbursement
	logger := log.WithFields(log.Fields{
		"round_id": round.Id,
		"kind":     d.Kind,
	})

	if round.ManualReview {
		logger.Warnf("%d payouts flagged for manual review", len(d.FlaggedPayouts()))
		return
	}
	if failed := d.FailedPayouts(); len(failed) > 0 {
		logger.Warnf("%d payouts need reconciliation", len(failed))
	}
	if round.Status == domain.StatusSettled {
		settlementsTotal.Inc()
		logger.WithField("payout", d.Total()).Info("round settled")
		return
	}
	logger.WithField("payout", d.Total()).Info("refunds issued")
}
