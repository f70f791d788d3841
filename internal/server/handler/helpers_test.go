package handler

import (
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrProfileNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrNotAllowListed, http.StatusForbidden},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrMarketGraduated, http.StatusConflict},
		{domain.ErrNotGraduated, http.StatusConflict},
		{domain.ErrSlippageExceeded, http.StatusConflict},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidOutcome, http.StatusBadRequest},
		{domain.ErrFeeExceedsMaximum, http.StatusBadRequest},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientVotes, http.StatusUnprocessableEntity},
		{domain.ErrNoFundsToWithdraw, http.StatusUnprocessableEntity},
		{domain.ErrEnginePaused, http.StatusServiceUnavailable},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrLockHeld, http.StatusTooManyRequests},
		{domain.ErrTransferFailed, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), "error %v", tc.err)
	}

	// Wrapped sentinels map the same as bare ones.
	wrapped := fmt.Errorf("buy profile 7: %w", domain.ErrMarketGraduated)
	assert.Equal(t, http.StatusConflict, statusForError(wrapped))
}

func TestParseWei(t *testing.T) {
	v, err := parseWei("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseWei("10000000000000000")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10_000_000_000_000_000), v)

	_, err = parseWei("-1")
	require.Error(t, err)

	_, err = parseWei("1.5e18")
	require.Error(t, err)
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=20", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 500, opts.Limit, "limit is capped")
	assert.Equal(t, 20, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/api/markets?limit=-3&offset=-1", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}

func TestActorAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/markets", nil)
	_, err := actorAddress(req)
	require.Error(t, err, "missing header")

	req.Header.Set("X-Actor-Address", "not-an-address")
	_, err = actorAddress(req)
	require.Error(t, err)

	req.Header.Set("X-Actor-Address", "0x1111111111111111111111111111111111111111")
	addr, err := actorAddress(req)
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr.Hex())
}
