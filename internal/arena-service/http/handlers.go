package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/arena-service/dto"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

// listRounds retorna as rodadas, opcionalmente filtradas por status
func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	f := ledger.RoundFilter{Limit: 100}
	if st := r.URL.Query().Get("status"); st != "" {
		f.Status = ledger.Status(st)
		if f.Status != ledger.StatusOpen && f.Status != ledger.StatusSettled {
			badRequest(w, "invalid_status", "status must be OPEN or SETTLED")
			return
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			badRequest(w, "invalid_limit", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	rounds, err := s.ledger.Rounds(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.now()
	out := make([]events.RoundSnapshot, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, dto.Snapshot(rd, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// openRound cria a rodada; apenas a autoridade
func (s *Server) openRound(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad_json", err.Error())
		return
	}
	deadline := req.Deadline
	if deadline.IsZero() && req.DurationSeconds > 0 {
		deadline = s.now().Add(time.Duration(req.DurationSeconds) * time.Second)
	}

	rd, err := s.ledger.OpenRound(r.Context(), identityFrom(r.Context()), req.Topic, deadline)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Snapshot(rd, s.now()))
}

// getRound retorna o snapshot da rodada, preferencialmente do cache
func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	if s.cache != nil {
		if snap, ok, err := s.cache.Get(r.Context(), topic); err == nil && ok {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	rd, err := s.ledger.Round(r.Context(), topic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := dto.Snapshot(rd, s.now())
	if s.cache != nil {
		if _, err := s.cache.Set(r.Context(), snap); err != nil {
			s.log.Warn("round cache set failed", zap.String("topic", topic), zap.Error(err))
		}
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getVault(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	bal, err := s.ledger.VaultBalance(r.Context(), topic)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.VaultResponse{Topic: topic, Balance: bal})
}

// placeStake debita a carteira do chamador e registra a aposta
func (s *Server) placeStake(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad_json", err.Error())
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.ledger.PlaceStake(r.Context(), chi.URLParam(r, "topic"), identityFrom(r.Context()), side, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.Stake(st))
}

func (s *Server) myStake(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.Stake(r.Context(), chi.URLParam(r, "topic"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Stake(st))
}

func (s *Server) settleByAuthority(w http.ResponseWriter, r *http.Request) {
	rd, err := s.ledger.SettleByAuthority(r.Context(), chi.URLParam(r, "topic"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Snapshot(rd, s.now()))
}

func (s *Server) settleAutomatic(w http.ResponseWriter, r *http.Request) {
	rd, err := s.ledger.SettleAutomatic(r.Context(), chi.URLParam(r, "topic"), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Snapshot(rd, s.now()))
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	user := identityFrom(r.Context())
	reward, err := s.ledger.ClaimReward(r.Context(), topic, user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ClaimResponse{Topic: topic, UserID: string(user), Reward: reward})
}

func (s *Server) myWallet(w http.ResponseWriter, r *http.Request) {
	user := identityFrom(r.Context())
	bal, err := s.ledger.Balance(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: string(user), Balance: bal})
}

// deposit adiciona saldo à carteira do chamador
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad_json", err.Error())
		return
	}
	user := identityFrom(r.Context())
	bal, err := s.ledger.Deposit(r.Context(), user, req.Amount, req.ExternalRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{UserID: string(user), Balance: bal})
}

func (s *Server) todayArena(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.catalog.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) listArenas(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []arena.Config{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(list), "list": list})
}

func (s *Server) arenaByDate(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.catalog.ByDate(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// saveArena cria ou atualiza a configuração do dia; apenas a autoridade
func (s *Server) saveArena(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAuthority(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	var cfg arena.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		badRequest(w, "bad_json", err.Error())
		return
	}
	saved, err := s.catalog.Save(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteArena(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAuthority(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.catalog.Delete(r.Context(), chi.URLParam(r, "date")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireAuthority(r *http.Request) error {
	if identityFrom(r.Context()) != s.ledger.Config().Authority {
		return fmt.Errorf("%w: arena catalog is managed by the authority", ledger.ErrUnauthorized)
	}
	return nil
}
