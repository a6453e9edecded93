package topics

const (
	// Rodadas
	RoundOpened  = "arena_round_opened"
	RoundSettled = "arena_round_settled"

	// Apostas
	StakePlaced   = "arena_stake_placed"
	RewardClaimed = "arena_reward_claimed"

	// Canal Redis pub/sub com snapshots de rodada para o hub websocket
	RoundUpdatesChannel = "arena_round_updates"
)
