package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// donationService is the slice of the donation service this handler needs.
type donationService interface {
	SetRecipient(ctx context.Context, actor common.Address, profileID uint64, recipient common.Address) error
	EscrowBalance(ctx context.Context, recipient common.Address) (*big.Int, error)
	Withdraw(ctx context.Context, actor common.Address) (*big.Int, error)
}

// DonationHandler serves donation recipient management and escrow withdrawal.
type DonationHandler struct {
	svc    donationService
	logger *slog.Logger
}

// NewDonationHandler creates a DonationHandler.
func NewDonationHandler(svc donationService, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{
		svc:    svc,
		logger: logHandler(logger, "donation"),
	}
}

type setRecipientRequest struct {
	Recipient string `json:"recipient"`
}

// SetRecipient repoints where a market's future donation fees accrue. Only
// the profile's controlling address may call it.
// PUT /api/markets/{profileID}/donation-recipient
func (h *DonationHandler) SetRecipient(w http.ResponseWriter, r *http.Request) {
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
	var req setRecipientRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := h.svc.SetRecipient(r.Context(), actor, profileID, common.HexToAddress(req.Recipient)); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id": profileID,
		"recipient":  common.HexToAddress(req.Recipient).Hex(),
	})
}

// EscrowBalance returns the donation escrow accrued to an address.
// GET /api/donations/{address}
func (h *DonationHandler) EscrowBalance(w http.ResponseWriter, r *http.Request) {
	recipient, err := addressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.svc.EscrowBalance(r.Context(), recipient)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"recipient": recipient.Hex(),
		"balance":   weiString(balance),
	})
}

// Withdraw drains the caller's entire escrow balance to their address.
// POST /api/donations/withdraw
func (h *DonationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, err := actorAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.svc.Withdraw(r.Context(), actor)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"recipient": actor.Hex(),
		"amount":    weiString(amount),
	})
}
