package treasury

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reputenet/trustmarket/internal/domain"
)

const testKeyHex = "4646464646464646464646464646464646464646464646464646464646464646"

var payoutRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")

// fakeRPC stands in for the JSON-RPC client; errors are injected per call.
type fakeRPC struct {
	nonceErr error
	gasErr   error
	sendErr  error
	sent     []*types.Transaction
}

func (f *fakeRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return 7, nil
}

func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeRPC) Close() {}

func newTestSender(t *testing.T, rpc *fakeRPC) *EthSender {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	chainID := big.NewInt(1)
	return &EthSender{
		client:  rpc,
		key:     key,
		from:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestEthSenderSend(t *testing.T) {
	ctx := context.Background()
	rpc := &fakeRPC{}
	s := newTestSender(t, rpc)

	err := s.Send(ctx, payoutRecipient, big.NewInt(1_000))
	require.NoError(t, err)

	require.Len(t, rpc.sent, 1)
	tx := rpc.sent[0]
	assert.Equal(t, payoutRecipient, *tx.To())
	assert.Equal(t, big.NewInt(1_000), tx.Value())
	assert.Equal(t, uint64(nativeTransferGas), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
}

func TestEthSenderRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	s := newTestSender(t, &fakeRPC{})

	err := s.Send(ctx, payoutRecipient, nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	err = s.Send(ctx, payoutRecipient, big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEthSenderPreservesFailureCause(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		rpc  *fakeRPC
		want string
	}{
		{"nonce lookup", &fakeRPC{nonceErr: errors.New("nonce unavailable")}, "nonce unavailable"},
		{"gas price lookup", &fakeRPC{gasErr: errors.New("gas oracle down")}, "gas oracle down"},
		{"broadcast", &fakeRPC{sendErr: errors.New("txpool full")}, "txpool full"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := newTestSender(t, tc.rpc).Send(ctx, payoutRecipient, big.NewInt(1_000))
			require.ErrorIs(t, err, domain.ErrTransferFailed)
			assert.Contains(t, err.Error(), tc.want, "the underlying cause must survive wrapping")
		})
	}
}
