package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pingpay/internal/config"
	"pingpay/internal/errs"
	"pingpay/internal/models"
	"pingpay/internal/token"
)

// erc20TransferGasLimit is a generous ceiling for a token transfer
// (typically ~60k gas).
const erc20TransferGasLimit = uint64(100000)

// Backend is the subset of the Ethereum RPC used by the client.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Client talks to the chain node: balance reads, token transfer
// submission, and receipt-based transfer verification.
type Client struct {
	backend         Backend
	tokenAddr       common.Address
	chainID         *big.Int
	confirmations   uint64
	toleranceBps    int64
	policy          RetryPolicy
	clock           Clock
	limiter         *rate.Limiter
	explorerBaseURL string
	logger          zerolog.Logger
}

// authTransport adds API key authentication to node requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return t.base.RoundTrip(req)
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg config.ChainConfig, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Transport: &authTransport{base: http.DefaultTransport, apiKey: cfg.ApiKey},
	}
	rpcClient, err := rpc.DialOptions(ctx, cfg.RpcEndpoint, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	return NewClient(ethclient.NewClient(rpcClient), cfg, logger), nil
}

// NewClient wraps an existing backend with the configured policy.
func NewClient(backend Backend, cfg config.ChainConfig, logger zerolog.Logger) *Client {
	return &Client{
		backend:         backend,
		tokenAddr:       common.HexToAddress(cfg.TokenAddress),
		chainID:         big.NewInt(cfg.ChainID),
		confirmations:   cfg.Confirmations,
		toleranceBps:    cfg.ToleranceBps,
		policy:          RetryPolicy{MaxAttempts: cfg.MaxRetries, Delay: cfg.RetryDelay, Deadline: cfg.VerifyTimeout},
		clock:           systemClock{},
		limiter:         rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		explorerBaseURL: cfg.ExplorerBaseURL,
		logger:          logger,
	}
}

func (c *Client) throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// TokenBalance returns the token balance of an address in integer
// units. Any read failure collapses to zero: availability over
// precision on the read path. Callers must not treat zero as proof of
// an empty wallet.
func (c *Client) TokenBalance(ctx context.Context, address string) *big.Int {
	if err := c.throttle(ctx); err != nil {
		return big.NewInt(0)
	}
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to pack balanceOf call")
		return big.NewInt(0)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.tokenAddr, Data: data}, nil)
	if err != nil {
		c.logger.Error().Err(err).Str("address", address).Msg("Token balance query failed")
		return big.NewInt(0)
	}
	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(results) == 0 {
		c.logger.Error().Err(err).Str("address", address).Msg("Failed to unpack balanceOf result")
		return big.NewInt(0)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return big.NewInt(0)
	}
	return balance
}

// NativeBalance returns the fee-currency balance of an address in wei,
// zero on read failure.
func (c *Client) NativeBalance(ctx context.Context, address string) *big.Int {
	if err := c.throttle(ctx); err != nil {
		return big.NewInt(0)
	}
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		c.logger.Error().Err(err).Str("address", address).Msg("Native balance query failed")
		return big.NewInt(0)
	}
	return balance
}

// FeeCostWei estimates the wei cost of a token transfer. A failed
// gas-price query falls back to a static estimate, never an error:
// estimation is advisory.
func (c *Client) FeeCostWei(ctx context.Context) *big.Int {
	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		// 0.1 gwei fallback
		gasPrice = big.NewInt(100000000)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(erc20TransferGasLimit), gasPrice)
}

// EstimateFee returns an advisory fee quote for a token transfer.
func (c *Client) EstimateFee(ctx context.Context) models.FeeEstimate {
	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Gas price query failed, using fallback estimate")
		return models.FeeEstimate{
			GasLimit:      fmt.Sprintf("%d", erc20TransferGasLimit),
			GasPrice:      "0.1",
			EstimatedCost: "0.00001",
		}
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(erc20TransferGasLimit), gasPrice)
	return models.FeeEstimate{
		GasLimit:      fmt.Sprintf("%d", erc20TransferGasLimit),
		GasPrice:      formatGwei(gasPrice),
		EstimatedCost: formatEther(cost),
	}
}

func (c *Client) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	return c.backend.SuggestGasPrice(ctx)
}

// SubmitTransfer signs and sends a token transfer from the given key.
// Submission is never retried: a rejected transaction must surface to
// the caller rather than risk a double-spend under a fresh nonce.
func (c *Client) SubmitTransfer(ctx context.Context, privateKeyHex, toAddress string, amount *big.Int) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "invalid signing key", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	if err := c.throttle(ctx); err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "rate limiter", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "failed to fetch nonce", err)
	}
	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "failed to fetch gas price", err)
	}
	data, err := erc20ABI.Pack("transfer", common.HexToAddress(toAddress), amount)
	if err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "failed to encode transfer", err)
	}

	tx := types.NewTransaction(nonce, c.tokenAddr, big.NewInt(0), erc20TransferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "failed to sign transaction", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", errs.Wrap(errs.ChainSubmissionError, "node rejected transaction", err)
	}

	c.logger.Info().
		Str("txHash", signed.Hash().Hex()).
		Str("from", from.Hex()).
		Str("to", toAddress).
		Str("amount", token.FormatUnits(amount)).
		Msg("Submitted token transfer")

	return signed.Hash().Hex(), nil
}

// Head returns the latest block number.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	return c.backend.BlockNumber(ctx)
}

// ExplorerURL returns the block explorer link for a transaction.
func (c *Client) ExplorerURL(txHash string) string {
	return c.explorerBaseURL + txHash
}

// TokenAddress returns the configured token contract address.
func (c *Client) TokenAddress() string {
	return c.tokenAddr.Hex()
}

func formatGwei(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9))
	return trimZeros(f.Text('f', 9))
}

func formatEther(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return trimZeros(f.Text('f', 18))
}

func trimZeros(s string) string {
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}
