package events

import "time"

// RoundSnapshot é a visão pública de uma rodada, usada nos eventos, no cache e no websocket
type RoundSnapshot struct {
	Topic        string    `json:"topic"`
	Authority    string    `json:"authority"`
	FeeRecipient string    `json:"fee_recipient"`
	DeadlineMs   int64     `json:"deadline_ms"`
	PoolA        uint64    `json:"pool_a"`
	PoolB        uint64    `json:"pool_b"`
	FeeBps       uint64    `json:"fee_bps"`
	FeePaid      uint64    `json:"fee_paid"`
	Status       string    `json:"status"` // "OPEN" | "SETTLED"
	Winner       string    `json:"winner,omitempty"`
	SettledBy    string    `json:"settled_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Version cresce a cada transição da rodada; consumidores descartam snapshots com versão menor
	Version uint64 `json:"version"`
}

// Evento publicado no tópico "arena_round_opened"
type RoundOpened struct {
	Round    RoundSnapshot `json:"round"`
	OpenedBy string        `json:"opened_by"`
	TsUnixMs int64         `json:"ts_unix_ms"`
}

// Evento publicado no tópico "arena_round_settled"
type RoundSettled struct {
	Round     RoundSnapshot `json:"round"`
	Winner    string        `json:"winner"`
	FeePaid   uint64        `json:"fee_paid"`
	SettledBy string        `json:"settled_by"`
	TsUnixMs  int64         `json:"ts_unix_ms"`
}
