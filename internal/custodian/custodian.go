package custodian

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"pingpay/internal/errs"
	"pingpay/internal/models"
	"pingpay/internal/token"
)

// WalletStore is the persistence surface the custodian needs. The
// store serializes first-time creation per handle, so concurrent
// callers always converge on one wallet.
type WalletStore interface {
	GetWalletByHandle(ctx context.Context, handle string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, handle, address, privateKey string) (*models.Wallet, error)
}

// ChainClient is the chain surface the custodian needs.
type ChainClient interface {
	TokenBalance(ctx context.Context, address string) *big.Int
	NativeBalance(ctx context.Context, address string) *big.Int
	FeeCostWei(ctx context.Context) *big.Int
	SubmitTransfer(ctx context.Context, privateKeyHex, toAddress string, amount *big.Int) (string, error)
}

// Custodian creates and operates per-handle custodial wallets.
type Custodian struct {
	store  WalletStore
	chain  ChainClient
	logger zerolog.Logger
}

func New(store WalletStore, chain ChainClient, logger zerolog.Logger) *Custodian {
	return &Custodian{store: store, chain: chain, logger: logger}
}

// Provision returns the wallet for a handle, generating and
// persisting a new keypair on first reference. created reports
// whether this call introduced the wallet; a race loser observes the
// winner's wallet and created=false.
func (c *Custodian) Provision(ctx context.Context, handle string) (*models.Wallet, bool, error) {
	normalized := models.NormalizeHandle(handle)

	wallet, err := c.store.GetWalletByHandle(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	if wallet != nil {
		return wallet, false, nil
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, false, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	privateKey := hexutil.Encode(crypto.FromECDSA(key))

	wallet, err = c.store.CreateWallet(ctx, normalized, address, privateKey)
	if err != nil {
		return nil, false, err
	}

	created := wallet.Address == address
	if created {
		c.logger.Info().
			Str("handle", normalized).
			Str("address", wallet.Address).
			Msg("Provisioned custodial wallet")
	}

	return wallet, created, nil
}

// GetOrCreate is Provision without the created flag. Idempotent.
func (c *Custodian) GetOrCreate(ctx context.Context, handle string) (*models.Wallet, error) {
	wallet, _, err := c.Provision(ctx, handle)
	return wallet, err
}

// Wallet returns the existing wallet for a handle, or a NotFound
// error when the handle was never provisioned.
func (c *Custodian) Wallet(ctx context.Context, handle string) (*models.Wallet, error) {
	return c.lookup(ctx, handle)
}

// Balance returns the token balance of an address as a decimal
// string. Read failures surface as a zero balance at this layer.
func (c *Custodian) Balance(ctx context.Context, address string) string {
	return token.FormatUnits(c.chain.TokenBalance(ctx, address))
}

// Send signs and submits a token transfer of amount from the handle's
// wallet.
func (c *Custodian) Send(ctx context.Context, handle, toAddress string, amount *big.Int) (string, *big.Int, error) {
	wallet, err := c.lookup(ctx, handle)
	if err != nil {
		return "", nil, err
	}

	balance := c.chain.TokenBalance(ctx, wallet.Address)
	if balance.Cmp(amount) < 0 {
		return "", nil, errs.Newf(errs.InsufficientFunds, "balance %s is below requested %s",
			token.FormatUnits(balance), token.FormatUnits(amount))
	}

	txHash, err := c.chain.SubmitTransfer(ctx, wallet.PrivateKey, toAddress, amount)
	if err != nil {
		return "", nil, err
	}
	return txHash, amount, nil
}

// SendAll drains the handle's token balance to an external address.
// The fee-currency balance is checked against the estimated network
// fee before submission so an unfundable transfer never leaves a
// wasted no-op on chain.
func (c *Custodian) SendAll(ctx context.Context, handle, toAddress string) (string, *big.Int, error) {
	wallet, err := c.lookup(ctx, handle)
	if err != nil {
		return "", nil, err
	}

	balance := c.chain.TokenBalance(ctx, wallet.Address)
	if balance.Sign() <= 0 {
		return "", nil, errs.New(errs.InsufficientFunds, "no token balance to withdraw")
	}

	gasCost := c.chain.FeeCostWei(ctx)
	if c.chain.NativeBalance(ctx, wallet.Address).Cmp(gasCost) < 0 {
		return "", nil, errs.Newf(errs.InsufficientGas, "fee balance below estimated cost of %s wei", gasCost)
	}

	txHash, err := c.chain.SubmitTransfer(ctx, wallet.PrivateKey, toAddress, balance)
	if err != nil {
		return "", nil, err
	}
	return txHash, balance, nil
}

func (c *Custodian) lookup(ctx context.Context, handle string) (*models.Wallet, error) {
	normalized := models.NormalizeHandle(handle)
	wallet, err := c.store.GetWalletByHandle(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, errs.Newf(errs.NotFound, "no wallet for handle %q", normalized)
	}
	return wallet, nil
}
