package dto

import (
	"time"

	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

type OpenRoundRequest struct {
	Topic    string    `json:"topic"`
	Deadline time.Time `json:"deadline"`
	// DurationSeconds é alternativa a Deadline: deadline = agora + duração
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
}

type PlaceStakeRequest struct {
	Side   string `json:"side"` // "A" | "B"
	Amount uint64 `json:"amount"`
}

type DepositRequest struct {
	Amount      uint64 `json:"amount"`
	ExternalRef string `json:"external_ref"`
}

type StakeResponse struct {
	Topic     string     `json:"topic"`
	UserID    string     `json:"user_id"`
	Side      string     `json:"side"`
	Amount    uint64     `json:"amount"`
	Claimed   bool       `json:"claimed"`
	Reward    uint64     `json:"reward"`
	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

type ClaimResponse struct {
	Topic  string `json:"topic"`
	UserID string `json:"user_id"`
	Reward uint64 `json:"reward"`
}

type VaultResponse struct {
	Topic   string `json:"topic"`
	Balance uint64 `json:"balance"`
}

type WalletResponse struct {
	UserID  string `json:"user_id"`
	Balance uint64 `json:"balance"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Snapshot converte a rodada do ledger para o formato público
func Snapshot(r ledger.Round, at time.Time) events.RoundSnapshot {
	return events.RoundSnapshot{
		Topic:        r.Topic,
		Authority:    string(r.Authority),
		FeeRecipient: string(r.FeeRecipient),
		DeadlineMs:   r.Deadline.UnixMilli(),
		PoolA:        r.PoolA,
		PoolB:        r.PoolB,
		FeeBps:       r.FeeBps,
		FeePaid:      r.FeePaid,
		Status:       string(r.Status),
		Winner:       string(r.Winner),
		SettledBy:    string(r.SettledBy),
		UpdatedAt:    at.UTC(),
		Version:      r.Version,
	}
}

func Stake(s ledger.Stake) StakeResponse {
	out := StakeResponse{
		Topic:     s.Topic,
		UserID:    string(s.User),
		Side:      string(s.Side),
		Amount:    s.Amount,
		Claimed:   s.Claimed,
		Reward:    s.Reward,
		CreatedAt: s.CreatedAt,
	}
	if !s.ClaimedAt.IsZero() {
		t := s.ClaimedAt
		out.ClaimedAt = &t
	}
	return out
}
