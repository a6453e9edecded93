package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/arena-service/dto"
	"github.com/radieske/arena-escrow/internal/ledger"
)

// statusFor traduz o tipo do erro do ledger/catálogo para o status HTTP
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, arena.ErrNotFound):
		return http.StatusNotFound, "arena_not_found"
	case errors.Is(err, arena.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	}

	kind := ledger.Kind(err)
	switch kind {
	case "round_not_found", "no_such_stake":
		return http.StatusNotFound, kind
	case "unauthorized":
		return http.StatusForbidden, kind
	case "insufficient_funds":
		return http.StatusPaymentRequired, kind
	case "round_already_exists", "round_closed", "not_ended", "already_settled",
		"duplicate_stake", "not_winner", "already_claimed", "not_settled":
		return http.StatusConflict, kind
	case "invalid_topic", "invalid_side", "invalid_amount", "invalid_deadline", "amount_overflow":
		return http.StatusBadRequest, kind
	}
	return http.StatusInternalServerError, "internal"
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: kind, Message: msg})
}

func badRequest(w http.ResponseWriter, kind, msg string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: kind, Message: msg})
}
