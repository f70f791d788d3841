package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/engine"
	"github.com/reputenet/trustmarket/internal/service"
)

// tradeService is the slice of the trade service this handler needs.
type tradeService interface {
	SimulateBuy(ctx context.Context, p service.BuyParams) (engine.BuyQuote, error)
	SimulateSell(ctx context.Context, actor common.Address, p service.SellParams) (engine.SellQuote, error)
	Buy(ctx context.Context, actor common.Address, p service.BuyParams) (engine.BuyQuote, error)
	Sell(ctx context.Context, actor common.Address, p service.SellParams) (engine.SellQuote, error)
}

// TradeHandler serves buys, sells and their simulations.
type TradeHandler struct {
	svc    tradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(svc tradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		svc:    svc,
		logger: logHandler(logger, "trade"),
	}
}

type buyRequest struct {
	Outcome       string `json:"outcome"`
	Tendered      string `json:"tendered"`
	ExpectedVotes uint64 `json:"expected_votes,omitempty"`
	SlippageBps   uint16 `json:"slippage_bps,omitempty"`
}

type sellRequest struct {
	Outcome          string `json:"outcome"`
	Votes            uint64 `json:"votes"`
	ExpectedProceeds string `json:"expected_proceeds,omitempty"`
	SlippageBps      uint16 `json:"slippage_bps,omitempty"`
}

type buyQuoteView struct {
	Outcome     string `json:"outcome"`
	Votes       uint64 `json:"votes"`
	Cost        string `json:"cost"`
	ProtocolFee string `json:"protocol_fee"`
	Donation    string `json:"donation"`
	FundsPaid   string `json:"funds_paid"`
	Refund      string `json:"refund"`
	OldPrice    string `json:"old_price"`
	NewPrice    string `json:"new_price"`
}

func toBuyQuoteView(q engine.BuyQuote) buyQuoteView {
	return buyQuoteView{
		Outcome:     q.Outcome.String(),
		Votes:       q.Votes,
		Cost:        weiString(q.Cost),
		ProtocolFee: weiString(q.ProtocolFee),
		Donation:    weiString(q.Donation),
		FundsPaid:   weiString(q.FundsPaid),
		Refund:      weiString(q.Refund),
		OldPrice:    weiString(q.OldPrice),
		NewPrice:    weiString(q.NewPrice),
	}
}

type sellQuoteView struct {
	Outcome     string `json:"outcome"`
	Votes       uint64 `json:"votes"`
	Gross       string `json:"gross"`
	ProtocolFee string `json:"protocol_fee"`
	Proceeds    string `json:"proceeds"`
	OldPrice    string `json:"old_price"`
	NewPrice    string `json:"new_price"`
}

func toSellQuoteView(q engine.SellQuote) sellQuoteView {
	return sellQuoteView{
		Outcome:     q.Outcome.String(),
		Votes:       q.Votes,
		Gross:       weiString(q.Gross),
		ProtocolFee: weiString(q.ProtocolFee),
		Proceeds:    weiString(q.Proceeds),
		OldPrice:    weiString(q.OldPrice),
		NewPrice:    weiString(q.NewPrice),
	}
}

func (h *TradeHandler) buyParams(r *http.Request) (service.BuyParams, error) {
	profileID, err := profileIDParam(r)
	if err != nil {
		return service.BuyParams{}, err
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		return service.BuyParams{}, err
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		return service.BuyParams{}, err
	}
	tendered, err := parseWei(req.Tendered)
	if err != nil {
		return service.BuyParams{}, err
	}
	return service.BuyParams{
		ProfileID:     profileID,
		Outcome:       outcome,
		Tendered:      tendered,
		ExpectedVotes: req.ExpectedVotes,
		SlippageBps:   req.SlippageBps,
	}, nil
}

func (h *TradeHandler) sellParams(r *http.Request) (service.SellParams, error) {
	profileID, err := profileIDParam(r)
	if err != nil {
		return service.SellParams{}, err
	}
	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		return service.SellParams{}, err
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		return service.SellParams{}, err
	}
	expected, err := parseWei(req.ExpectedProceeds)
	if err != nil {
		return service.SellParams{}, err
	}
	return service.SellParams{
		ProfileID:        profileID,
		Outcome:          outcome,
		Votes:            req.Votes,
		ExpectedProceeds: expected,
		SlippageBps:      req.SlippageBps,
	}, nil
}

// Buy purchases votes in a market.
// POST /api/markets/{profileID}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.buyParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.svc.Buy(r.Context(), actor, p)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuyQuoteView(quote))
}

// Sell sells previously purchased votes back to the market.
// POST /api/markets/{profileID}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.sellParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.svc.Sell(r.Context(), actor, p)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellQuoteView(quote))
}

// SimulateBuy prices a buy without committing anything.
// POST /api/markets/{profileID}/simulate-buy
func (h *TradeHandler) SimulateBuy(w http.ResponseWriter, r *http.Request) {
	p, err := h.buyParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.svc.SimulateBuy(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBuyQuoteView(quote))
}

// SimulateSell prices a sell without committing anything. The actor header is
// required because sells are bounded by the caller's vote balance.
// POST /api/markets/{profileID}/simulate-sell
func (h *TradeHandler) SimulateSell(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.sellParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := h.svc.SimulateSell(r.Context(), actor, p)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellQuoteView(quote))
}
