package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/SandroAugusto/school-of-solana/internal/address"
	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"
	"github.com/SandroAugusto/school-of-solana/internal/server/middleware"
	"github.com/SandroAugusto/school-of-solana/internal/service"
	"github.com/SandroAugusto/school-of-solana/internal/settlement"

	"github.com/shopspring/decimal"
)

// Commands submits lifecycle mutations on behalf of a verified caller.
type Commands interface {
	CreateMarket(ctx context.Context, caller domain.Identity, question string, endTime int64, oracle domain.Identity, curated bool) (event.Result, error)
	PlaceBet(ctx context.Context, caller, market domain.Identity, side domain.Side, amount uint64) (event.Result, error)
	CloseMarket(ctx context.Context, caller, market domain.Identity) (event.Result, error)
	ResolveMarket(ctx context.Context, caller, market domain.Identity, outcome domain.Outcome) (event.Result, error)
	Withdraw(ctx context.Context, caller, market, bet domain.Identity) (event.Result, error)
}

// Records reads committed markets and bets.
type Records interface {
	GetMarket(ctx context.Context, key domain.Identity) (domain.Market, error)
	GetBet(ctx context.Context, market, bettor domain.Identity) (domain.Bet, error)
	Bets(ctx context.Context, market domain.Identity) ([]domain.Bet, error)
}

// Board lists market summaries.
type Board interface {
	GetAll() []service.MarketSummary
}

// MarketHandler serves the market lifecycle endpoints.
type MarketHandler struct {
	commands Commands
	records  Records
	board    Board
	policy   settlement.Policy
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(commands Commands, records Records, board Board, policy settlement.Policy, logger *slog.Logger) *MarketHandler {
	if policy == nil {
		policy = settlement.None{}
	}
	return &MarketHandler{
		commands: commands,
		records:  records,
		board:    board,
		policy:   policy,
		logger:   logger.With(slog.String("handler", "markets")),
	}
}

type createMarketRequest struct {
	Question  string          `json:"question"`
	EndTime   int64           `json:"end_time"`
	Oracle    domain.Identity `json:"oracle"`
	IsCurated bool            `json:"is_curated"`
}

type placeBetRequest struct {
	Side   domain.Side `json:"side"`
	Amount uint64      `json:"amount"`
}

type resolveRequest struct {
	Outcome domain.Outcome `json:"outcome"`
}

type withdrawRequest struct {
	Bet *domain.Identity `json:"bet,omitempty"`
}

type quoteResponse struct {
	Bet    domain.Bet      `json:"bet"`
	Policy string          `json:"policy"`
	Quote  decimal.Decimal `json:"quote"`
}

type withdrawResponse struct {
	Bet   domain.Bet       `json:"bet"`
	Quote *decimal.Decimal `json:"quote,omitempty"`
	Seq   uint64           `json:"seq"`
}

// caller returns the identity attached by the auth middleware.
func (h *MarketHandler) caller(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "missing identity")
	}
	return id, ok
}

// fail writes err and logs it when it maps to an internal error.
func (h *MarketHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := classify(err); status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeFailure(w, err)
}

func (h *MarketHandler) marketParam(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	key, err := pathIdentity(r, "key")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return domain.Identity{}, false
	}
	return key, true
}

// CreateMarket opens a new market with the caller as authority.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if req.Oracle.IsZero() {
		writeError(w, http.StatusBadRequest, "BadRequest", "oracle is required")
		return
	}

	res, err := h.commands.CreateMarket(r.Context(), caller, req.Question, req.EndTime, req.Oracle, req.IsCurated)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Market)
}

// ListMarkets returns every market with its implied odds.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.GetAll())
}

// GetMarket returns one market straight from the store.
// GET /api/markets/{key}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	m, err := h.records.GetMarket(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListBets returns the bets of one market.
// GET /api/markets/{key}/bets
func (h *MarketHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	if _, err := h.records.GetMarket(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	}
	bets, err := h.records.Bets(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, bets)
}

// PlaceBet stakes on one side of a market.
// POST /api/markets/{key}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	res, err := h.commands.PlaceBet(r.Context(), caller, key, req.Side, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Bet)
}

// CloseMarket stops betting on an ended market.
// POST /api/markets/{key}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}

	res, err := h.commands.CloseMarket(r.Context(), caller, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Market)
}

// ResolveMarket records the oracle's outcome.
// POST /api/markets/{key}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	res, err := h.commands.ResolveMarket(r.Context(), caller, key, req.Outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Market)
}

// Withdraw claims the caller's winning bet. The bet defaults to the caller's
// own bet in the market; an explicit one must still belong to the caller.
// POST /api/markets/{key}/withdraw
func (h *MarketHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
	}
	bet := address.BetKey(key, caller)
	if req.Bet != nil {
		bet = *req.Bet
	}

	res, err := h.commands.Withdraw(r.Context(), caller, key, bet)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := withdrawResponse{Bet: res.Bet}
	if len(res.Events) > 0 {
		resp.Quote = res.Events[0].Quote
		resp.Seq = res.Events[0].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}

// QuoteBet prices a bettor's winning bet under the configured policy.
// GET /api/markets/{key}/bets/{bettor}/quote
func (h *MarketHandler) QuoteBet(w http.ResponseWriter, r *http.Request) {
	key, ok := h.marketParam(w, r)
	if !ok {
		return
	}
	bettor, err := pathIdentity(r, "bettor")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	m, err := h.records.GetMarket(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.records.GetBet(r.Context(), key, bettor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := settlement.QuoteBet(h.policy, m, b)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Bet: b, Policy: h.policy.Name(), Quote: q})
}
