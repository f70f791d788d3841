package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/service"
)

// adminService is the slice of the admin service this handler needs.
type adminService interface {
	ListConfigs(ctx context.Context) ([]domain.MarketConfig, error)
	AddConfig(ctx context.Context, actor common.Address, c domain.MarketConfig) (int, error)
	RemoveConfig(ctx context.Context, actor common.Address, index int) (domain.MarketConfig, error)
	GetFees(ctx context.Context) (domain.FeeConfig, error)
	UpdateFees(ctx context.Context, actor common.Address, f domain.FeeConfig) error
	SetAllowListed(ctx context.Context, actor common.Address, profileID uint64, allowed bool) error
	SetAllowListEnforced(ctx context.Context, actor common.Address, enforced bool) error
	Graduate(ctx context.Context, actor common.Address, profileID uint64) error
	WithdrawGraduated(ctx context.Context, actor common.Address, profileID uint64) (*big.Int, error)
}

// adminMarketService is the admin-side market creation surface.
type adminMarketService interface {
	AdminCreateMarket(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error)
}

// AdminHandler serves the role-gated administration surface.
type AdminHandler struct {
	svc     adminService
	markets adminMarketService
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc adminService, markets adminMarketService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:     svc,
		markets: markets,
		logger:  logHandler(logger, "admin"),
	}
}

type configView struct {
	Index            int    `json:"index"`
	InitialLiquidity string `json:"initial_liquidity"`
	InitialVotes     uint64 `json:"initial_votes"`
	BasePrice        string `json:"base_price"`
}

func toConfigView(c domain.MarketConfig) configView {
	return configView{
		Index:            c.Index,
		InitialLiquidity: weiString(c.InitialLiquidity),
		InitialVotes:     c.InitialVotes,
		BasePrice:        weiString(c.BasePrice),
	}
}

// ListConfigs returns the market-config registry in index order.
// GET /api/admin/configs
func (h *AdminHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.svc.ListConfigs(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	views := make([]configView, 0, len(configs))
	for _, c := range configs {
		views = append(views, toConfigView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": views})
}

type addConfigRequest struct {
	InitialLiquidity string `json:"initial_liquidity"`
	InitialVotes     uint64 `json:"initial_votes"`
	BasePrice        string `json:"base_price"`
}

// AddConfig appends a config variant to the registry.
// POST /api/admin/configs
func (h *AdminHandler) AddConfig(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req addConfigRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	liquidity, err := parseWei(req.InitialLiquidity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	basePrice, err := parseWei(req.BasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	index, err := h.svc.AddConfig(r.Context(), actor, domain.MarketConfig{
		InitialLiquidity: liquidity,
		InitialVotes:     req.InitialVotes,
		BasePrice:        basePrice,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"index": index})
}

// RemoveConfig deletes a config variant. The last config moves into the
// freed index, so indices are not stable across removals.
// DELETE /api/admin/configs/{index}
func (h *AdminHandler) RemoveConfig(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid config index")
		return
	}

	removed, err := h.svc.RemoveConfig(r.Context(), actor, index)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": toConfigView(removed)})
}

type feesView struct {
	EntryFeeBps        uint16    `json:"entry_fee_bps"`
	ExitFeeBps         uint16    `json:"exit_fee_bps"`
	DonationFeeBps     uint16    `json:"donation_fee_bps"`
	ProtocolFeeAddress string    `json:"protocol_fee_address"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetFees returns the current fee parameters.
// GET /api/admin/fees
func (h *AdminHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.svc.GetFees(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, feesView{
		EntryFeeBps:        fees.EntryFeeBps,
		ExitFeeBps:         fees.ExitFeeBps,
		DonationFeeBps:     fees.DonationFeeBps,
		ProtocolFeeAddress: fees.ProtocolFeeAddress.Hex(),
		UpdatedAt:          fees.UpdatedAt,
	})
}

type updateFeesRequest struct {
	EntryFeeBps        uint16 `json:"entry_fee_bps"`
	ExitFeeBps         uint16 `json:"exit_fee_bps"`
	DonationFeeBps     uint16 `json:"donation_fee_bps"`
	ProtocolFeeAddress string `json:"protocol_fee_address"`
}

// UpdateFees replaces the process-wide fee parameters.
// PUT /api/admin/fees
func (h *AdminHandler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateFeesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.ProtocolFeeAddress) {
		writeError(w, http.StatusBadRequest, "invalid protocol fee address")
		return
	}

	err = h.svc.UpdateFees(r.Context(), actor, domain.FeeConfig{
		EntryFeeBps:        req.EntryFeeBps,
		ExitFeeBps:         req.ExitFeeBps,
		DonationFeeBps:     req.DonationFeeBps,
		ProtocolFeeAddress: common.HexToAddress(req.ProtocolFeeAddress),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type allowListRequest struct {
	Allowed bool `json:"allowed"`
}

// SetAllowListed marks a profile as allowed (or not) to open a market while
// enforcement is on.
// PUT /api/admin/allowlist/{profileID}
func (h *AdminHandler) SetAllowListed(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req allowListRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SetAllowListed(r.Context(), actor, profileID, req.Allowed); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enforcementRequest struct {
	Enforced bool `json:"enforced"`
}

// SetAllowListEnforced toggles allow-list enforcement globally.
// PUT /api/admin/allowlist
func (h *AdminHandler) SetAllowListEnforced(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req enforcementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.SetAllowListEnforced(r.Context(), actor, req.Enforced); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateMarket opens a market on behalf of a target profile, bypassing the
// allow list.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
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

	m, err := h.markets.AdminCreateMarket(r.Context(), actor, service.CreateParams{
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

// Graduate marks a market as graduated, freezing all trading.
// POST /api/admin/markets/{profileID}/graduate
func (h *AdminHandler) Graduate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Graduate(r.Context(), actor, profileID); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WithdrawGraduated drains a graduated market's funds to the caller.
// POST /api/admin/markets/{profileID}/withdraw
func (h *AdminHandler) WithdrawGraduated(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profileID, err := profileIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.svc.WithdrawGraduated(r.Context(), actor, profileID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id": profileID,
		"amount":     weiString(amount),
	})
}
