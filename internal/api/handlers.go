package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/domain"
	"forge/internal/engine"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check NATS when configured
	if s.nc != nil && !s.nc.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "NATS disconnected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Market())
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	tick, ok := s.session.Ticker(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no price known for symbol")
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Account())
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Positions())
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := engine.HistoryFilter{
		Symbol: strings.ToUpper(q.Get("symbol")),
	}

	if status := q.Get("status"); status != "" {
		switch domain.OrderStatus(status) {
		case domain.OrderStatusOpen, domain.OrderStatusFilled,
			domain.OrderStatusCancelled, domain.OrderStatusLiquidated:
			filter.Status = domain.OrderStatus(status)
		default:
			writeError(w, http.StatusBadRequest,
				"invalid status: must be OPEN, FILLED, CANCELLED or LIQUIDATED")
			return
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	writeJSON(w, http.StatusOK, s.session.History(filter))
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.PendingOrders())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req.Symbol = strings.ToUpper(req.Symbol)

	order, err := s.session.PlaceOrder(req)
	if err != nil {
		writeError(w, rejectionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := s.session.CancelOrder(orderID)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownOrder) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleResetAccount(w http.ResponseWriter, r *http.Request) {
	s.session.ResetAccount()
	writeJSON(w, http.StatusOK, s.session.Account())
}

func (s *Server) handleKillswitchReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.ResetKillswitch())
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, s.session.SetWalletConnected(req.Connected))
}

func (s *Server) handleTradingMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode domain.TradingMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	status, err := s.session.SetTradingMode(req.Mode)
	if err != nil {
		writeError(w, rejectionStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// rejectionStatus maps engine rejections onto HTTP status codes: bad
// requests for malformed intents, 409 for the killswitch gate, 422 for
// precondition failures on an otherwise well-formed order.
func rejectionStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrKillswitchActive),
		errors.Is(err, engine.ErrWalletNotConnected):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoPrice),
		errors.Is(err, engine.ErrInsufficientMargin),
		errors.Is(err, engine.ErrNoOpenPosition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
