package ledger

import (
	"strings"
	"time"
)

// Identity identifica um participante (apostador, autoridade, recebedor de taxa)
type Identity string

// Side é um dos dois lados de uma rodada
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

// Valid informa se o lado é A ou B
func (s Side) Valid() bool { return s == SideA || s == SideB }

// ParseSide aceita "A"/"B" (e as variantes "team_a"/"team_b" usadas pelo front)
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A", "TEAM_A", "TEAMA":
		return SideA, nil
	case "B", "TEAM_B", "TEAMB":
		return SideB, nil
	}
	return SideNone, ErrInvalidSide
}

// Status do ciclo de vida da rodada: OPEN -> SETTLED (terminal)
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusSettled Status = "SETTLED"
)

// MaxTopicLen limita o tamanho do tópico em bytes
const MaxTopicLen = 50

// Round é o registro de uma rodada, identificada pelo tópico
type Round struct {
	Topic        string
	Authority    Identity
	FeeRecipient Identity
	Deadline     time.Time
	PoolA        uint64
	PoolB        uint64
	FeeBps       uint64
	FeePaid      uint64
	Status       Status
	Winner       Side
	SettledBy    Identity
	CreatedAt    time.Time
	SettledAt    time.Time
	// Version cresce a cada transição confirmada (abertura = 1); ordena snapshots fora do store
	Version uint64
}

// Total retorna pool_a + pool_b
func (r Round) Total() uint64 { return r.PoolA + r.PoolB }

// Pool retorna o total apostado no lado informado
func (r Round) Pool(s Side) uint64 {
	switch s {
	case SideA:
		return r.PoolA
	case SideB:
		return r.PoolB
	}
	return 0
}

// Distributable é o valor que fica no cofre para os vencedores após a taxa
func (r Round) Distributable() uint64 { return r.Total() - r.FeePaid }

// Ended informa se o prazo de apostas já passou em now
func (r Round) Ended(now time.Time) bool { return !now.Before(r.Deadline) }

// Stake é a aposta única de um usuário em uma rodada, chave (topic, user)
type Stake struct {
	Topic     string
	User      Identity
	Side      Side
	Amount    uint64
	Claimed   bool
	Reward    uint64
	CreatedAt time.Time
	ClaimedAt time.Time
}

// Account é uma conta de custódia: carteira de usuário ou cofre de rodada
type Account string

// WalletAccount retorna a conta de carteira de um usuário
func WalletAccount(id Identity) Account { return Account("wallet:" + string(id)) }

// VaultAccount retorna o cofre associado 1:1 a uma rodada
func VaultAccount(topic string) Account { return Account("vault:" + topic) }

// Entry é um movimento registrado no livro de uma conta
type Entry struct {
	ID        string
	Account   Account
	Op        string // CREDIT | DEBIT
	Amount    uint64
	Ref       string
	CreatedAt time.Time
}

const (
	OpCredit = "CREDIT"
	OpDebit  = "DEBIT"
)

// RoundFilter filtra a listagem de rodadas
type RoundFilter struct {
	Status Status
	// DueBefore, quando não zero, seleciona rodadas com deadline <= DueBefore
	DueBefore time.Time
	Limit     int
}
