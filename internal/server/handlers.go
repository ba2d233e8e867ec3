package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"caro-arena/internal/service"
)

// playerIDHeader identifies the acting player. The platform fronting this
// service authenticates players and injects the header.
const playerIDHeader = "X-Player-ID"

type createGameRequest struct {
	RoomName  string `json:"room_name"`
	BetAmount int64  `json:"bet_amount,omitempty"`
}

type makeMoveRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	if req.RoomName == "" {
		s.writeError(w, http.StatusBadRequest, "room_name is required")
		return
	}

	if _, _, err := s.wallets.EnsureWallet(r.Context(), playerID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	game, err := s.caro.CreateGame(r.Context(), playerID, req.RoomName, req.BetAmount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, game)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	if _, _, err := s.wallets.EnsureWallet(r.Context(), playerID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	game, err := s.caro.JoinGame(r.Context(), playerID, r.PathValue("room"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleMakeMove(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	var req makeMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := s.caro.MakeMove(r.Context(), playerID, r.PathValue("id"), req.Row, req.Col)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleAbandonGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	game, err := s.caro.AbandonGame(r.Context(), playerID, r.PathValue("room"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.caro.GetGame(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleListMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := s.caro.Moves(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moves)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.caro.ActiveRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	wallet, _, err := s.wallets.EnsureWallet(r.Context(), playerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"player_id": wallet.PlayerID,
		"balance":   wallet.Balance,
	})
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	playerID, ok := s.playerID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	txs, err := s.wallets.History(r.Context(), playerID, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// playerID extracts the acting player from the request, writing a 400 if
// the header is missing.
func (s *Server) playerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(playerIDHeader))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, playerIDHeader+" header is required")
		return "", false
	}
	return id, true
}

// writeServiceError maps service errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrWalletNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		s.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrDuplicateRoom),
		errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrAlreadyFinished),
		errors.Is(err, service.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSelfJoin),
		errors.Is(err, service.ErrNotYourTurn),
		errors.Is(err, service.ErrIllegalPosition),
		errors.Is(err, service.ErrNotPlaying),
		errors.Is(err, service.ErrNotAParticipant),
		errors.Is(err, service.ErrInvalidBet):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}
