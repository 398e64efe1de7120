package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"spotarb/internal/model"
	"spotarb/internal/trade"
)

// tradeRequest is the body of POST /api/trades. Prices and amount are
// optional and default to the latest scan's opportunity for the symbol.
type tradeRequest struct {
	TradeID   string              `json:"tradeId"`
	Symbol    string              `json:"symbol"`
	BuyVenue  string              `json:"buyVenue"`
	SellVenue string              `json:"sellVenue"`
	Amount    decimal.NullDecimal `json:"amount"`
	BuyPrice  decimal.NullDecimal `json:"buyPrice"`
	SellPrice decimal.NullDecimal `json:"sellPrice"`
}

type tradeResponse struct {
	Success      bool            `json:"success"`
	TradeID      string          `json:"tradeId"`
	Status       string          `json:"status"`
	BuyExecuted  bool            `json:"buyExecuted"`
	SellExecuted bool            `json:"sellExecuted"`
	BuyOrderID   string          `json:"buyOrderId,omitempty"`
	SellOrderID  string          `json:"sellOrderId,omitempty"`
	Errors       model.LegErrors `json:"errors"`
	Details      trade.Result    `json:"details"`
}

type errorBody struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GET /api/opportunities
func (s *Server) getOpportunities(w http.ResponseWriter, r *http.Request) {
	if result, ok := s.deps.Scanner.Latest(); ok {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scanner.Scan(r.Context()))
}

// POST /api/opportunities/scan
func (s *Server) scanNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scanner.Scan(r.Context()))
}

// GET /api/trades
func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.deps.Trades.List(r.Context())
	if err != nil {
		s.logger.Error("list trades", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, model.KindUnexpected, "could not read trade history")
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// POST /api/trades
func (s *Server) executeTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidParameters, "invalid request body: "+err.Error())
		return
	}
	body.Symbol = strings.ToUpper(strings.TrimSpace(body.Symbol))
	if body.Symbol == "" {
		writeError(w, http.StatusBadRequest, model.KindInvalidParameters, "symbol is required")
		return
	}

	req, msg := s.resolve(body)
	if msg != "" {
		writeError(w, http.StatusBadRequest, model.KindInvalidParameters, msg)
		return
	}

	// the trade outlives the request once started
	res, err := s.deps.Executor.Execute(context.WithoutCancel(r.Context()), req)
	if errors.Is(err, model.ErrDuplicateTrade) {
		writeError(w, http.StatusConflict, model.KindInvalidParameters, "tradeId "+req.ID+" already exists")
		return
	}
	if err != nil {
		s.logger.Error("execute trade", slog.String("symbol", req.Symbol), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, model.KindUnexpected, err.Error())
		return
	}

	t := res.Trade
	writeJSON(w, http.StatusOK, tradeResponse{
		Success:      t.Status == model.TradeCompleted,
		TradeID:      t.ID,
		Status:       string(t.Status),
		BuyExecuted:  t.BuyExecuted,
		SellExecuted: t.SellExecuted,
		BuyOrderID:   t.BuyOrderID,
		SellOrderID:  t.SellOrderID,
		Errors:       t.Errors,
		Details:      res,
	})
}

// resolve fills what the caller left out from the latest scan. It returns a
// message when the request cannot be completed.
func (s *Server) resolve(body tradeRequest) (trade.Request, string) {
	req := trade.Request{
		ID:        body.TradeID,
		Symbol:    body.Symbol,
		BuyVenue:  body.BuyVenue,
		SellVenue: body.SellVenue,
		Amount:    body.Amount.Decimal,
		BuyPrice:  body.BuyPrice.Decimal,
		SellPrice: body.SellPrice.Decimal,
	}
	complete := body.Amount.Valid && body.BuyPrice.Valid && body.SellPrice.Valid &&
		req.BuyVenue != "" && req.SellVenue != ""
	if complete {
		return req, ""
	}

	scan, ok := s.deps.Scanner.Latest()
	if !ok {
		return req, "no scan available to fill prices for " + body.Symbol
	}
	opp, ok := scan.Find(body.Symbol)
	if !ok {
		return req, "unknown symbol: " + body.Symbol + " has no current opportunity"
	}

	if req.BuyVenue == "" {
		req.BuyVenue = opp.BuyVenue
	}
	if req.SellVenue == "" {
		req.SellVenue = opp.SellVenue
	}
	if !body.Amount.Valid {
		req.Amount = opp.TradeAmount
	}
	if !body.BuyPrice.Valid {
		p, ok := priceOn(opp, req.BuyVenue)
		if !ok {
			return req, "no price for " + body.Symbol + " on " + req.BuyVenue
		}
		req.BuyPrice = p
	}
	if !body.SellPrice.Valid {
		p, ok := priceOn(opp, req.SellVenue)
		if !ok {
			return req, "no price for " + body.Symbol + " on " + req.SellVenue
		}
		req.SellPrice = p
	}
	return req, ""
}

func priceOn(opp model.Opportunity, venue string) (decimal.Decimal, bool) {
	switch venue {
	case opp.BuyVenue:
		return opp.BuyPrice, true
	case opp.SellVenue:
		return opp.SellPrice, true
	}
	return decimal.Zero, false
}

// GET /api/balances
func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Balances.Refresh(r.Context()))
}

// GET /api/auto-trade
func (s *Server) getAutoTrade(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.deps.AutoTrade.Enabled()})
}

// PUT /api/auto-trade
func (s *Server) putAutoTrade(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, model.KindInvalidParameters, `body must be {"enabled": true|false}`)
		return
	}
	s.deps.AutoTrade.SetEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":{"kind":"unexpected_error","message":"encode response"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, kind model.ErrorKind, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   errorBody{Kind: kind, Message: msg},
	})
}
