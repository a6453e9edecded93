package ledger

import "errors"

// Erros do ledger. Toda falha deixa o estado exatamente como estava antes da chamada.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRoundAlreadyExists = errors.New("round already exists")
	ErrRoundNotFound      = errors.New("round not found")
	ErrRoundClosed        = errors.New("round closed")
	ErrNotEnded           = errors.New("round not ended")
	ErrAlreadySettled     = errors.New("round already settled")
	ErrDuplicateStake     = errors.New("duplicate stake")
	ErrNoSuchStake        = errors.New("no such stake")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotWinner          = errors.New("not winner")
	ErrAlreadyClaimed     = errors.New("reward already claimed")
	ErrNotSettled         = errors.New("round not settled")

	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDeadline = errors.New("invalid deadline")
	ErrAmountOverflow  = errors.New("amount overflow")
)

// Kind devolve o nome estável do tipo de erro, usado por HTTP e métricas
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRoundAlreadyExists):
		return "round_already_exists"
	case errors.Is(err, ErrRoundNotFound):
		return "round_not_found"
	case errors.Is(err, ErrRoundClosed):
		return "round_closed"
	case errors.Is(err, ErrNotEnded):
		return "not_ended"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrDuplicateStake):
		return "duplicate_stake"
	case errors.Is(err, ErrNoSuchStake):
		return "no_such_stake"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotWinner):
		return "not_winner"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotSettled):
		return "not_settled"
	case errors.Is(err, ErrInvalidTopic):
		return "invalid_topic"
	case errors.Is(err, ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidDeadline):
		return "invalid_deadline"
	case errors.Is(err, ErrAmountOverflow):
		return "amount_overflow"
	}
	return "internal"
}
