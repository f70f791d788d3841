package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
	"github.com/reputenet/trustmarket/internal/service"
)

var testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

// stubMarketService returns canned values; per-call funcs override behavior.
type stubMarketService struct {
	createFn func(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error)
	getFn    func(ctx context.Context, profileID uint64) (domain.Market, error)
}

func (s *stubMarketService) CreateMarket(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error) {
	return s.createFn(ctx, actor, p)
}

func (s *stubMarketService) GetMarket(ctx context.Context, profileID uint64) (domain.Market, error) {
	return s.getFn(ctx, profileID)
}

func (s *stubMarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, int64, error) {
	return nil, 0, nil
}

func (s *stubMarketService) Price(ctx context.Context, profileID uint64, o domain.Outcome) (*big.Int, error) {
	return big.NewInt(5_000_000_000_000_000), nil
}

func (s *stubMarketService) Prices(ctx context.Context, profileID uint64) (domain.PricePoint, error) {
	return domain.PricePoint{
		TrustPrice:    big.NewInt(5_000_000_000_000_000),
		DistrustPrice: big.NewInt(5_000_000_000_000_000),
		UpdatedAt:     time.Unix(1700000000, 0).UTC(),
	}, nil
}

func (s *stubMarketService) ListParticipants(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]common.Address, int64, error) {
	return []common.Address{testOwner}, 1, nil
}

func (s *stubMarketService) GetBalance(ctx context.Context, profileID uint64, participant common.Address) (domain.VoteBalance, error) {
	return domain.VoteBalance{ProfileID: profileID, Participant: participant}, nil
}

func (s *stubMarketService) ListEvents(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	return nil, nil
}

func testMarket(profileID uint64) domain.Market {
	return domain.Market{
		ProfileID:     profileID,
		TrustVotes:    3,
		DistrustVotes: 1,
		BasePrice:     new(big.Int).Set(domain.DefaultBasePrice),
		Funds:         big.NewInt(40_000_000_000_000_000),
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
		UpdatedAt:     time.Unix(1700000100, 0).UTC(),
	}
}

func newMarketMux(svc marketService) *http.ServeMux {
	h := NewMarketHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets/{profileID}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{profileID}/price", h.GetPrice)
	return mux
}

func TestGetMarket(t *testing.T) {
	svc := &stubMarketService{
		getFn: func(ctx context.Context, profileID uint64) (domain.Market, error) {
			require.Equal(t, uint64(42), profileID)
			return testMarket(profileID), nil
		},
	}
	mux := newMarketMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ProfileID  uint64 `json:"profile_id"`
		TrustVotes uint64 `json:"trust_votes"`
		BasePrice  string `json:"base_price"`
		Funds      string `json:"funds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint64(42), body.ProfileID)
	assert.Equal(t, uint64(3), body.TrustVotes)
	assert.Equal(t, "10000000000000000", body.BasePrice)
	assert.Equal(t, "40000000000000000", body.Funds)
}

func TestGetMarketNotFound(t *testing.T) {
	svc := &stubMarketService{
		getFn: func(ctx context.Context, profileID uint64) (domain.Market, error) {
			return domain.Market{}, domain.ErrNotFound
		},
	}
	mux := newMarketMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/not-a-number", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMarket(t *testing.T) {
	var gotActor common.Address
	var gotParams service.CreateParams
	svc := &stubMarketService{
		createFn: func(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error) {
			gotActor = actor
			gotParams = p
			return testMarket(p.ProfileID), nil
		},
	}
	mux := newMarketMux(svc)

	body := `{"profile_id":42,"config_index":0,"tendered":"20000000000000000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(body))
	req.Header.Set("X-Actor-Address", testOwner.Hex())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, testOwner, gotActor)
	assert.Equal(t, uint64(42), gotParams.ProfileID)
	require.NotNil(t, gotParams.Tendered)
	assert.Equal(t, "20000000000000000", gotParams.Tendered.String())
}

func TestCreateMarketRejectsBadRequests(t *testing.T) {
	svc := &stubMarketService{
		createFn: func(ctx context.Context, actor common.Address, p service.CreateParams) (domain.Market, error) {
			t.Fatal("service should not be reached")
			return domain.Market{}, nil
		},
	}
	mux := newMarketMux(svc)

	// Missing actor header.
	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{"profile_id":42}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{"profile_id":42,"bogus":true}`))
	req.Header.Set("X-Actor-Address", testOwner.Hex())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Negative wei is rejected before the service sees it.
	req = httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{"profile_id":42,"tendered":"-5"}`))
	req.Header.Set("X-Actor-Address", testOwner.Hex())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrice(t *testing.T) {
	svc := &stubMarketService{}
	mux := newMarketMux(svc)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/42/price?outcome=trust", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var single map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, "trust", single["outcome"])
	assert.Equal(t, "5000000000000000", single["price"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/42/price", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var both priceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &both))
	assert.Equal(t, "5000000000000000", both.TrustPrice)
	assert.Equal(t, "5000000000000000", both.DistrustPrice)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/42/price?outcome=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
