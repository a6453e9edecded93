package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/arena-escrow/internal/ledger"
)

// Ledger agrupa as métricas das operações do ledger
type Ledger struct {
	Ops      *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewLedger cria e registra as métricas em reg (nil = registry padrão)
func NewLedger(reg prometheus.Registerer) *Ledger {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Ledger{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_ledger_ops_total",
			Help: "operações do ledger por resultado",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_ledger_op_duration_seconds",
			Help:    "latência das operações do ledger",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.Ops, m.Duration)
	return m
}

// Observe tem a assinatura de ledger.OpObserver
func (m *Ledger) Observe(op string, err error, elapsed time.Duration) {
	m.Ops.WithLabelValues(op, ledger.Kind(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Keeper agrupa as métricas do settlement-keeper
type Keeper struct {
	Settlements *prometheus.CounterVec
	Ticks       prometheus.Counter
}

func NewKeeper(reg prometheus.Registerer) *Keeper {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Keeper{
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_keeper_settlements_total",
			Help: "tentativas de liquidação automática por resultado",
		}, []string{"result"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_keeper_ticks_total",
			Help: "varreduras executadas",
		}),
	}
	reg.MustRegister(m.Settlements, m.Ticks)
	return m
}
