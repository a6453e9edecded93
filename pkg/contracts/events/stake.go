package events

// Evento publicado no tópico "arena_stake_placed"
type StakePlaced struct {
	Topic    string `json:"topic"`
	UserID   string `json:"user_id"`
	Side     string `json:"side"` // "A" | "B"
	Amount   uint64 `json:"amount"`
	PoolA    uint64 `json:"pool_a"`
	PoolB    uint64 `json:"pool_b"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

// Evento publicado no tópico "arena_reward_claimed"
type RewardClaimed struct {
	Topic    string `json:"topic"`
	UserID   string `json:"user_id"`
	Side     string `json:"side"`
	Stake    uint64 `json:"stake"`
	Reward   uint64 `json:"reward"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

// RoundUpdate é a mensagem do canal Redis e do websocket
type RoundUpdate struct {
	Kind  string        `json:"kind"` // round_opened | stake_placed | round_settled | reward_claimed
	Round RoundSnapshot `json:"round"`
}
