package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/risk"
	"github.com/rustyeddy/tradedesk/sim"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req sim.OrderRequest
	if err := decode(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, OrderResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	o, err := s.engine.PlaceOrder(r.Context(), req)
	if err != nil {
		resp := OrderResponse{Error: err.Error()}
		var verr *risk.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				resp.Codes = append(resp.Codes, v.Code)
			}
		}
		respondJSON(w, statusFor(err), resp)
		return
	}

	respondJSON(w, http.StatusCreated, OrderResponse{
		Success:  true,
		OrderID:  o.ID,
		Warnings: o.Warnings,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.engine.Orders()

	// Optional ?status= filter
	if st := r.URL.Query().Get("status"); st != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if string(o.Status) == st {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.Order(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, statusFor(err), "order not found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CancelOrder(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondJSON(w, statusFor(err), OrderResponse{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, OrderResponse{Success: true, OrderID: mux.Vars(r)["id"]})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Positions())
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	p, ok := s.engine.Position(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "position not found", symbol)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.PortfolioSummary())
}

func (s *Server) handleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.RiskMetrics())
}

func (s *Server) handleDailyState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.DailyState())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch risk.SettingsPatch
	if err := decode(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	next, err := s.engine.UpdateRiskSettings(r.Context(), patch)
	if err != nil {
		respondError(w, statusFor(err), "settings rejected", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, next)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req EmergencyStopRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	changed := s.engine.EmergencyStop(r.Context(), req.Reason)
	respondJSON(w, http.StatusOK, TradingStateResponse{Changed: changed, Metrics: s.engine.RiskMetrics()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	changed := s.engine.ResumeTrading(r.Context())
	respondJSON(w, http.StatusOK, TradingStateResponse{Changed: changed, Metrics: s.engine.RiskMetrics()})
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Accept {"ticks":[...]} or a bare tick.
	var req TickRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Ticks) == 0 {
		var t market.Tick
		if err := json.Unmarshal(body, &t); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		req.Ticks = []market.Tick{t}
	}

	// Reject the whole batch before applying any of it.
	for i, t := range req.Ticks {
		if err := t.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid tick", fmt.Sprintf("tick %d: %v", i, err))
			return
		}
	}
	for _, t := range req.Ticks {
		if err := s.engine.OnTick(r.Context(), t); err != nil {
			s.log.Debug("tick rejected", zap.String("symbol", t.Symbol), zap.Error(err))
			respondError(w, http.StatusBadRequest, "invalid tick", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Clients: s.hub.Clients()})
}
