package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/reputenet/trustmarket/internal/domain"
)

// nativeTransferGas is the fixed gas cost of a plain value transfer.
const nativeTransferGas = 21_000

// rpcClient is the slice of ethclient.Client that Send needs.
type rpcClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// EthSender pays out native currency from the treasury account by signing and
// broadcasting plain value transfers through an Ethereum JSON-RPC endpoint.
type EthSender struct {
	client  rpcClient
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	signer  types.Signer
	logger  *slog.Logger
}

// NewEthSender dials the RPC endpoint and derives the treasury address from
// the hex-encoded private key.
func NewEthSender(ctx context.Context, rpcURL, privateKeyHex string, logger *slog.Logger) (*EthSender, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("treasury: dialing %s: %w", rpcURL, err)
	}

	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("treasury: invalid private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("treasury: fetching chain ID: %w", err)
	}

	from := ethcrypto.PubkeyToAddress(key.PublicKey)
	logger.Info("treasury sender ready",
		"address", from.Hex(),
		"chain_id", chainID.String())

	return &EthSender{
		client:  client,
		key:     key,
		from:    from,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		logger:  logger,
	}, nil
}

// Address returns the treasury account address.
func (s *EthSender) Address() common.Address {
	return s.from
}

// Send transfers amount wei to the recipient. It returns once the transaction
// is accepted by the node's mempool; inclusion is not awaited.
func (s *EthSender) Send(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("treasury: %w: amount must be positive", domain.ErrInvalidAmount)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return fmt.Errorf("treasury: fetching nonce: %v: %w", err, domain.ErrTransferFailed)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("treasury: fetching gas price: %v: %w", err, domain.ErrTransferFailed)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return fmt.Errorf("treasury: signing transfer: %v: %w", err, domain.ErrTransferFailed)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		s.logger.Error("treasury transfer rejected",
			"to", to.Hex(),
			"amount_wei", amount.String(),
			"error", err)
		return fmt.Errorf("treasury: broadcasting transfer to %s: %v: %w", to.Hex(), err, domain.ErrTransferFailed)
	}

	s.logger.Info("treasury transfer sent",
		"to", to.Hex(),
		"amount_wei", amount.String(),
		"tx", signed.Hash().Hex())
	return nil
}

// Close releases the underlying RPC connection.
func (s *EthSender) Close() {
	s.client.Close()
}

var _ domain.PayoutSender = (*EthSender)(nil)
