package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/service"
)

// marketService is the slice of the market service this handler needs.
type marketService interface {
	CreateMarket(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error)
	GetMarket(ctx context.Context, profileID uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, int64, error)
	Price(ctx context.Context, profileID uint64, o domain.Outcome) (*big.Int, error)
	Prices(ctx context.Context, profileID uint64) (domain.PricePoint, error)
	ListParticipants(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]common.Address, int64, error)
	GetBalance(ctx context.Context, profileID uint64, participant common.Address) (domain.VoteBalance, error)
	ListEvents(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]domain.MarketEvent, error)
}

// MarketHandler serves the market read surface and self-service creation.
type MarketHandler struct {
	svc    marketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc marketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: logHandler(logger, "market"),
	}
}

// marketView is the JSON shape of a market. Wei amounts travel as decimal
// strings because they exceed float64 precision.
type marketView struct {
	ProfileID     uint64    `json:"profile_id"`
	TrustVotes    uint64    `json:"trust_votes"`
	DistrustVotes uint64    `json:"distrust_votes"`
	BasePrice     string    `json:"base_price"`
	Funds         string    `json:"funds"`
	Graduated     bool      `json:"graduated"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toMarketView(m domain.Market) marketView {
	return marketView{
		ProfileID:     m.ProfileID,
		TrustVotes:    m.TrustVotes,
		DistrustVotes: m.DistrustVotes,
		BasePrice:     weiString(m.BasePrice),
		Funds:         weiString(m.Funds),
		Graduated:     m.Graduated,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type priceView struct {
	TrustPrice    string    `json:"trust_price"`
	DistrustPrice string    `json:"distrust_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type eventView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	ProfileID uint64          `json:"profile_id"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toEventView(ev domain.MarketEvent) eventView {
	return eventView{
		ID:        ev.ID,
		Type:      string(ev.Type),
		ProfileID: ev.ProfileID,
		Actor:     ev.Actor.Hex(),
		Payload:   json.RawMessage(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
}

type createMarketRequest struct {
	ProfileID   uint64 `json:"profile_id"`
	ConfigIndex int    `json:"config_index"`
	Tendered    string `json:"tendered"`
}

// CreateMarket opens a market for the caller's own profile.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	tendered, err := parseWei(req.Tendered)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.CreateMarket(r.Context(), actor, service.CreateParams{
		ProfileID:   req.ProfileID,
		ConfigIndex: req.ConfigIndex,
		Tendered:    tendered,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketView(m))
}

// listMarketsResponse wraps the market list with pagination metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns all markets ordered by profile ID.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, total, err := h.svc.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, toMarketView(m))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market.
// GET /api/markets/{profileID}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.svc.GetMarket(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketView(m))
}

// GetPrice returns both outcome prices, or a single one when the ?outcome=
// query parameter is present.
// GET /api/markets/{profileID}/price
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if raw := r.URL.Query().Get("outcome"); raw != "" {
		outcome, err := domain.ParseOutcome(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid outcome: "+raw)
			return
		}
		price, err := h.svc.Price(r.Context(), profileID, outcome)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"outcome": outcome.String(),
			"price":   weiString(price),
		})
		return
	}

	p, err := h.svc.Prices(r.Context(), profileID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, priceView{
		TrustPrice:    weiString(p.TrustPrice),
		DistrustPrice: weiString(p.DistrustPrice),
		UpdatedAt:     p.UpdatedAt,
	})
}

// ListParticipants returns the market's participants in first-trade order.
// GET /api/markets/{profileID}/participants
func (h *MarketHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := parseListOpts(r)
	addrs, total, err := h.svc.ListParticipants(r.Context(), profileID, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	hexes := make([]string, 0, len(addrs))
	for _, a := range addrs {
		hexes = append(hexes, a.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participants": hexes,
		"total":        total,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

// GetBalance returns a participant's vote balance. Participants that never
// traded read as zero balances.
// GET /api/markets/{profileID}/balances/{address}
func (h *MarketHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	participant, err := addressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.svc.GetBalance(r.Context(), profileID, participant)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id":     b.ProfileID,
		"participant":    participant.Hex(),
		"trust_votes":    b.TrustVotes,
		"distrust_votes": b.DistrustVotes,
		"updated_at":     b.UpdatedAt,
	})
}

// ListEvents returns the market's event log, newest first.
// GET /api/markets/{profileID}/events
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.svc.ListEvents(r.Context(), profileID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, toEventView(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}
