package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"pingpay/internal/errs"
	"pingpay/internal/token"
)

// RetryPolicy bounds the wait for a transaction to become visible and
// confirmed. MaxAttempts and Delay govern the visibility poll;
// Deadline caps the whole verification.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Deadline    time.Duration
}

// Clock abstracts time for the verification loops so tests can
// substitute a fake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithClock replaces the client's clock. Test hook.
func (c *Client) WithClock(clock Clock) *Client {
	c.clock = clock
	return c
}

// VerifiedTransfer is the result of a successful verification.
type VerifiedTransfer struct {
	BlockNumber uint64
	// Amount is the raw on-chain value. Callers persist the expected,
	// already-approved amount to keep ledger records canonical.
	Amount *big.Int
}

// VerifyTransfer checks that txHash carries a token transfer to
// expectedRecipient of at least expectedAmount within the tolerance
// band. The transaction may not be visible yet due to propagation
// lag, so existence is polled with bounded retries; the confirmation
// wait is capped by the policy deadline. A non-success execution
// status is terminal and never retried.
func (c *Client) VerifyTransfer(ctx context.Context, txHash, expectedRecipient string, expectedAmount *big.Int) (*VerifiedTransfer, error) {
	hash := common.HexToHash(txHash)
	recipient := common.HexToAddress(expectedRecipient)

	ctx, cancel := context.WithTimeout(ctx, c.policy.Deadline)
	defer cancel()

	c.logger.Info().
		Str("txHash", txHash).
		Str("recipient", expectedRecipient).
		Str("amount", token.FormatUnits(expectedAmount)).
		Msg("Verifying transfer")

	if err := c.waitForTransaction(ctx, hash); err != nil {
		return nil, err
	}

	receipt, err := c.waitForReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, errs.Newf(errs.ChainExecutionFailed, "transaction %s failed on chain", txHash)
	}

	observed := c.findTransferAmount(receipt, recipient)

	if !token.WithinTolerance(observed, expectedAmount, c.toleranceBps) {
		return nil, errs.Newf(errs.AmountMismatch, "amount too low: expected %s, got %s",
			token.FormatUnits(expectedAmount), token.FormatUnits(observed))
	}

	c.logger.Info().
		Str("txHash", txHash).
		Uint64("blockNumber", receipt.BlockNumber.Uint64()).
		Str("observed", token.FormatUnits(observed)).
		Msg("Transfer verified")

	return &VerifiedTransfer{
		BlockNumber: receipt.BlockNumber.Uint64(),
		Amount:      observed,
	}, nil
}

// waitForTransaction polls until the node reports the transaction,
// retrying a fixed number of times with a fixed delay.
func (c *Client) waitForTransaction(ctx context.Context, hash common.Hash) error {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return errs.Wrap(errs.TransactionTimeout, "verification deadline exceeded", err)
		}
		_, _, err := c.backend.TransactionByHash(ctx, hash)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Transaction lookup failed")
		}
		if attempt == c.policy.MaxAttempts {
			break
		}
		if err := c.clock.Sleep(ctx, c.policy.Delay); err != nil {
			return errs.Wrap(errs.TransactionTimeout, "verification deadline exceeded", err)
		}
	}
	return errs.Newf(errs.TransactionNotFound, "transaction %s not found after %d attempts",
		hash.Hex(), c.policy.MaxAttempts)
}

// waitForReceipt waits for the transaction to be mined with the
// configured confirmation depth, bounded by the context deadline.
func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	for {
		if err := c.throttle(ctx); err != nil {
			return nil, errs.Wrap(errs.TransactionTimeout, "confirmation wait deadline exceeded", err)
		}
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			confirmed, err := c.confirmationDepth(ctx, receipt)
			if err != nil {
				return nil, err
			}
			if confirmed >= c.confirmations {
				return receipt, nil
			}
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet.
		case err != nil:
			c.logger.Warn().Err(err).Msg("Receipt lookup failed")
		}

		if err := c.clock.Sleep(ctx, c.policy.Delay); err != nil {
			return nil, errs.Wrap(errs.TransactionTimeout, "confirmation wait deadline exceeded", err)
		}
	}
}

func (c *Client) confirmationDepth(ctx context.Context, receipt *gethtypes.Receipt) (uint64, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.TransactionTimeout, "failed to read chain head", err)
	}
	block := receipt.BlockNumber.Uint64()
	if head < block {
		return 0, nil
	}
	return head - block + 1, nil
}

// findTransferAmount scans receipt logs for the first token Transfer
// event addressed to the expected recipient. Address comparison is
// byte-exact, which subsumes case-insensitive hex comparison.
func (c *Client) findTransferAmount(receipt *gethtypes.Receipt, recipient common.Address) *big.Int {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != c.tokenAddr {
			continue
		}
		if len(log.Topics) < 3 || log.Topics[0] != transferEventSignature {
			continue
		}
		to := common.BytesToAddress(log.Topics[2].Bytes())
		if to != recipient {
			continue
		}
		return new(big.Int).SetBytes(log.Data)
	}
	return big.NewInt(0)
}
