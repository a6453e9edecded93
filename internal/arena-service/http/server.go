package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	rcache "github.com/radieske/arena-escrow/internal/arena-service/cache"
	"github.com/radieske/arena-escrow/internal/arena-service/ws"
	"github.com/radieske/arena-escrow/internal/ledger"
)

// Ledger define as operações do ledger usadas pelos handlers
type Ledger interface {
	OpenRound(ctx context.Context, caller ledger.Identity, topic string, deadline time.Time) (ledger.Round, error)
	PlaceStake(ctx context.Context, topic string, user ledger.Identity, side ledger.Side, amount uint64) (ledger.Stake, error)
	SettleByAuthority(ctx context.Context, topic string, caller ledger.Identity) (ledger.Round, error)
	SettleAutomatic(ctx context.Context, topic string, caller ledger.Identity) (ledger.Round, error)
	ClaimReward(ctx context.Context, topic string, user ledger.Identity) (uint64, error)
	Deposit(ctx context.Context, user ledger.Identity, amount uint64, ref string) (uint64, error)

	Round(ctx context.Context, topic string) (ledger.Round, error)
	Rounds(ctx context.Context, f ledger.RoundFilter) ([]ledger.Round, error)
	Stake(ctx context.Context, topic string, user ledger.Identity) (ledger.Stake, error)
	Balance(ctx context.Context, user ledger.Identity) (uint64, error)
	VaultBalance(ctx context.Context, topic string) (uint64, error)
	Config() ledger.Config
}

// Server expõe a API REST da arena: rodadas, apostas, carteiras e catálogo
type Server struct {
	log     *zap.Logger
	ledger  Ledger
	catalog *arena.Catalog
	cache   *rcache.RoundCache
	hub     *ws.Hub
	limiter *rateLimiter
	now     func() time.Time
}

type Option func(*Server)

// WithCache liga o cache Redis de snapshots de rodada
func WithCache(c *rcache.RoundCache) Option { return func(s *Server) { s.cache = c } }

// WithHub expõe /ws
func WithHub(h *ws.Hub) Option { return func(s *Server) { s.hub = h } }

// WithRateLimit limita requisições por identidade; perSec <= 0 desliga
func WithRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec > 0 {
			s.limiter = newRateLimiter(perSec, burst)
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer instancia o servidor HTTP da arena
func NewServer(log *zap.Logger, l Ledger, catalog *arena.Catalog, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log, ledger: l, catalog: catalog, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router retorna o roteador HTTP com os endpoints REST
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withIdentity)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Route("/v1/rounds", func(r chi.Router) {
		r.Get("/", s.listRounds)
		r.With(requireIdentity).Post("/", s.openRound)
		r.Route("/{topic}", func(r chi.Router) {
			r.Get("/", s.getRound)
			r.Get("/vault", s.getVault)
			r.With(requireIdentity).Post("/stakes", s.placeStake)
			r.With(requireIdentity).Get("/stakes/me", s.myStake)
			r.With(requireIdentity).Post("/settle", s.settleByAuthority)
			r.With(requireIdentity).Post("/settle/auto", s.settleAutomatic)
			r.With(requireIdentity).Post("/claim", s.claim)
		})
	})

	r.Route("/v1/wallets/me", func(r chi.Router) {
		r.Use(requireIdentity)
		r.Get("/", s.myWallet)
		r.Post("/deposit", s.deposit)
	})

	r.Route("/v1/arena", func(r chi.Router) {
		r.Get("/", s.listArenas)
		r.Get("/today", s.todayArena)
		r.Get("/{date}", s.arenaByDate)
		r.With(requireIdentity).Post("/", s.saveArena)
		r.With(requireIdentity).Delete("/{date}", s.deleteArena)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}
