package httpservice

import (
	"fmt"
	"time"

	"github.com/lastword-games/roundd/internal/core/application"
)

type createRoundRequest struct {
	Id                 string     `json:"id"`
	EntryFee           uint64     `json:"entry_fee"`
	MinParticipants    int        `json:"min_participants"`
	WinnerCount        int        `json:"winner_count"`
	BaseCountdown      string     `json:"base_countdown"`
	FinalStretch       string     `json:"final_stretch"`
	OpenDuration       string     `json:"open_duration"`
	GraceWindow        string     `json:"grace_window"`
	MaxGraceExtensions int        `json:"max_grace_extensions"`
	AutoStart          bool       `json:"auto_start"`
	ScheduledOpenAt    *time.Time `json:"scheduled_open_at"`
}

func (r createRoundRequest) parse() (application.CreateRoundRequest, error) {
	req := application.CreateRoundRequest{
		Id:                 r.Id,
		EntryFee:           r.EntryFee,
		MinParticipants:    r.MinParticipants,
		WinnerCount:        r.WinnerCount,
		MaxGraceExtensions: r.MaxGraceExtensions,
		AutoStart:          r.AutoStart,
	}
	if r.ScheduledOpenAt != nil {
		req.ScheduledOpenAt = *r.ScheduledOpenAt
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"base_countdown", r.BaseCountdown, &req.BaseCountdown},
		{"final_stretch", r.FinalStretch, &req.FinalStretch},
		{"open_duration", r.OpenDuration, &req.OpenDuration},
		{"grace_window", r.GraceWindow, &req.GraceWindow},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return req, fmt.Errorf("invalid %s: %s", d.name, err)
		}
		*d.dst = parsed
	}
	return req, nil
}

type joinRequest struct {
	UserId      string `json:"user_id"`
	IsSpectator bool   `json:"is_spectator"`
}

type contributeRequest struct {
	Amount uint64 `json:"amount"`
}

type keepAliveRequest struct {
	ActorId string `json:"actor_id"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type keepAliveResponse struct {
	Accepted bool       `json:"accepted"`
	Reason   string     `json:"reason,omitempty"`
	Deadline *time.Time `json:"countdown_deadline,omitempty"`
}

type tickSummaryResponse struct {
	Ticked  int `json:"ticked"`
	Settled int `json:"settled"`
}

type payoutResponse struct {
	Rank     int    `json:"rank"`
	UserId   string `json:"user_id"`
	Amount   uint64 `json:"amount"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type disbursementResponse struct {
	Kind      string           `json:"kind"`
	Pool      uint64           `json:"pool"`
	NetPool   uint64           `json:"net_pool"`
	Retained  uint64           `json:"retained"`
	Payouts   []payoutResponse `json:"payouts"`
	Completed bool             `json:"completed"`
}

type roundResponse struct {
	Id                string                `json:"id"`
	Status            string                `json:"status"`
	EntryFee          uint64                `json:"entry_fee"`
	MinParticipants   int                   `json:"min_participants"`
	WinnerCount       int                   `json:"winner_count"`
	Participants      int                   `json:"participants"`
	Spectators        int                   `json:"spectators"`
	PoolValue         uint64                `json:"pool_value"`
	ScheduledOpenAt   *time.Time            `json:"scheduled_open_at,omitempty"`
	OpenedAt          *time.Time            `json:"opened_at,omitempty"`
	LiveStartedAt     *time.Time            `json:"live_started_at,omitempty"`
	EndedAt           *time.Time            `json:"ended_at,omitempty"`
	OpenDeadline      *time.Time            `json:"open_deadline,omitempty"`
	CountdownDeadline *time.Time            `json:"countdown_deadline,omitempty"`
	RemainingMs       int64                 `json:"remaining_ms"`
	GraceExtensions   int                   `json:"grace_extensions"`
	LastActors        []string              `json:"last_actors"`
	SettlementVersion uint64                `json:"settlement_version"`
	ManualReview      bool                  `json:"manual_review"`
	CancelReason      string                `json:"cancel_reason,omitempty"`
	Disbursement      *disbursementResponse `json:"disbursement,omitempty"`
}

func newRoundResponse(r *application.RoundSnapshot) roundResponse {
	resp := roundResponse{
		Id:                r.Id,
		Status:            r.Status,
		EntryFee:          r.EntryFee,
		MinParticipants:   r.MinParticipants,
		WinnerCount:       r.WinnerCount,
		Participants:      r.Participants,
		Spectators:        r.Spectators,
		PoolValue:         r.PoolValue,
		ScheduledOpenAt:   timePtr(r.ScheduledOpenAt),
		OpenedAt:          timePtr(r.OpenedAt),
		LiveStartedAt:     timePtr(r.LiveStartedAt),
		EndedAt:           timePtr(r.EndedAt),
		OpenDeadline:      timePtr(r.OpenDeadline),
		CountdownDeadline: timePtr(r.CountdownDeadline),
		RemainingMs:       r.Remaining.Milliseconds(),
		GraceExtensions:   r.GraceExtensions,
		LastActors:        r.LastActors,
		SettlementVersion: r.SettlementVersion,
		ManualReview:      r.ManualReview,
		CancelReason:      r.CancelReason,
	}
	if d := r.Disbursement; d != nil {
		payouts := make([]payoutResponse, 0, len(d.Payouts))
		for _, p := range d.Payouts {
			payouts = append(payouts, payoutResponse(p))
		}
		resp.Disbursement = &disbursementResponse{
			Kind:      d.Kind,
			Pool:      d.Pool,
			NetPool:   d.NetPool,
			Retained:  d.Retained,
			Payouts:   payouts,
			Completed: d.Completed,
		}
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
