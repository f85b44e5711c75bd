package domain

import "time"

const RoundTopic = "round"

type EventType string

const (
	EventRoundOpened       EventType = "round_opened"
	EventOpenExtended      EventType = "open_extended"
	EventRoundLive         EventType = "round_live"
	EventFinalStretch      EventType = "final_stretch"
	EventCountdownReset    EventType = "countdown_reset"
	EventSettlementClaimed EventType = "settlement_claimed"
	EventRoundSettled      EventType = "round_settled"
	EventRoundCancelled    EventType = "round_cancelled"
	EventRefundsIssued     EventType = "refunds_issued"
	EventPayoutFlagged     EventType = "payout_flagged"
)

type RoundEvent interface {
	GetRoundId() string
	GetType() EventType
}

func (e RoundOpened) GetRoundId() string         { return e.Id }
func (e OpenExtended) GetRoundId() string        { return e.Id }
func (e RoundWentLive) GetRoundId() string       { return e.Id }
func (e FinalStretchStarted) GetRoundId() string { return e.Id }
func (e CountdownReset) GetRoundId() string      { return e.Id }
func (e SettlementClaimed) GetRoundId() string   { return e.Id }
func (e RoundSettled) GetRoundId() string        { return e.Id }
func (e RoundCancelled) GetRoundId() string      { return e.Id }
func (e RefundsIssued) GetRoundId() string       { return e.Id }
func (e PayoutFlaggedEvent) GetRoundId() string  { return e.Id }

func (e RoundOpened) GetType() EventType         { return EventRoundOpened }
func (e OpenExtended) GetType() EventType        { return EventOpenExtended }
func (e RoundWentLive) GetType() EventType       { return EventRoundLive }
func (e FinalStretchStarted) GetType() EventType { return EventFinalStretch }
func (e CountdownReset) GetType() EventType      { return EventCountdownReset }
func (e SettlementClaimed) GetType() EventType   { return EventSettlementClaimed }
func (e RoundSettled) GetType() EventType        { return EventRoundSettled }
func (e RoundCancelled) GetType() EventType      { return EventRoundCancelled }
func (e RefundsIssued) GetType() EventType       { return EventRefundsIssued }
func (e PayoutFlaggedEvent) GetType() EventType  { return EventPayoutFlagged }

type RoundOpened struct {
	Id        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Deadline  time.Time `json:"open_deadline"`
}

type OpenExtended struct {
	Id           string    `json:"id"`
	Extensions   int       `json:"extensions"`
	Participants int       `json:"participants"`
	Deadline     time.Time `json:"open_deadline"`
}

type RoundWentLive struct {
	Id           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Participants int       `json:"participants"`
	Deadline     time.Time `json:"countdown_deadline"`
}

type FinalStretchStarted struct {
	Id       string    `json:"id"`
	Deadline time.Time `json:"countdown_deadline"`
}

type CountdownReset struct {
	Id       string    `json:"id"`
	ActorId  string    `json:"actor_id"`
	Deadline time.Time `json:"countdown_deadline"`
}

type SettlementClaimed struct {
	Id      string `json:"id"`
	Version uint64 `json:"settlement_version"`
	Pool    uint64 `json:"pool_value"`
}

type RoundSettled struct {
	Id       string   `json:"id"`
	Winners  []string `json:"winners"`
	Shares   []uint64 `json:"shares"`
	Retained uint64   `json:"retained"`
	Failed   []string `json:"failed,omitempty"`
}

type RoundCancelled struct {
	Id     string `json:"id"`
	Reason string `json:"reason"`
}

type RefundsIssued struct {
	Id      string   `json:"id"`
	Users   []string `json:"users"`
	Amounts []uint64 `json:"amounts"`
	Failed  []string `json:"failed,omitempty"`
}

type PayoutFlaggedEvent struct {
	Id     string           `json:"id"`
	Kind   DisbursementKind `json:"kind"`
	UserId string           `json:"user_id"`
	Amount uint64           `json:"amount"`
	Error  string           `json:"error"`
}
