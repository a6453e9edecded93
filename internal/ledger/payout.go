package ledger

import (
	"math"
	"math/bits"
)

const (
	// DefaultFeeBps é a taxa de protocolo padrão: 500 bps = 5%
	DefaultFeeBps uint64 = 500
	// BpsDenominator: 1 bps = 0.01%
	BpsDenominator uint64 = 10_000
	// MaxAmount é o maior total que cabe nas colunas BIGINT do repositório
	MaxAmount uint64 = math.MaxInt64
)

// Winner decide o lado vencedor comparando os pools.
// Empate (pool_a == pool_b) resolve para B, pois a comparação é estritamente pool_a > pool_b.
func Winner(poolA, poolB uint64) Side {
	if poolA > poolB {
		return SideA
	}
	return SideB
}

// Fee calcula floor(total * bps / 10000) sem overflow intermediário.
// bps precisa ser <= BpsDenominator.
func Fee(total, bps uint64) uint64 {
	if total == 0 || bps == 0 {
		return 0
	}
	hi, lo := bits.Mul64(total, bps)
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}

// Reward calcula floor(amount * distributable / winningPool) com intermediário de 128 bits.
// amount nunca excede winningPool para uma aposta do lado vencedor.
func Reward(amount, distributable, winningPool uint64) uint64 {
	if amount == 0 || winningPool == 0 {
		return 0
	}
	if amount >= winningPool {
		return distributable
	}
	hi, lo := bits.Mul64(amount, distributable)
	q, _ := bits.Div64(hi, lo, winningPool)
	return q
}

// addChecked soma respeitando MaxAmount
func addChecked(a, b uint64) (uint64, bool) {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 || s > MaxAmount {
		return 0, false
	}
	return s, true
}
