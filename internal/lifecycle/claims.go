package lifecycle

import (
	"context"
	"math/big"
	"time"

	"pingpay/internal/errs"
	"pingpay/internal/events"
	"pingpay/internal/models"
	"pingpay/internal/token"
	"pingpay/internal/validation"
)

// ClaimInfo is the view of a transfer exposed to a claim-token
// holder.
type ClaimInfo struct {
	TransferID       string     `json:"id"`
	Amount           string     `json:"amount"`
	SenderHandle     string     `json:"sender_handle,omitempty"`
	RecipientHandle  string     `json:"recipient_handle"`
	RecipientAddress string     `json:"recipient_address"`
	Status           string     `json:"status"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	CurrentBalance   string     `json:"current_balance"`
	TxHash           string     `json:"tx_hash,omitempty"`
	ExplorerURL      string     `json:"explorer_url,omitempty"`
}

// GetClaim returns claim details for a token. An unknown token reads
// as not found / expired; no partial matches.
func (m *Manager) GetClaim(ctx context.Context, claimToken string) (*ClaimInfo, error) {
	transfer, err := m.store.GetTransferByClaimToken(ctx, claimToken)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errs.New(errs.NotFound, "claim not found or expired")
	}

	info := &ClaimInfo{
		TransferID:       transfer.ID,
		Amount:           transfer.Amount,
		SenderHandle:     transfer.SenderHandle,
		RecipientHandle:  transfer.RecipientHandle,
		RecipientAddress: transfer.RecipientAddress,
		Status:           transfer.Status.String(),
		ClaimedAt:        transfer.ClaimedAt,
		CurrentBalance:   m.wallets.Balance(ctx, transfer.RecipientAddress),
		TxHash:           transfer.TxHash,
	}
	if transfer.TxHash != "" {
		info.ExplorerURL = m.verifier.ExplorerURL(transfer.TxHash)
	}
	return info, nil
}

// ClaimResult is returned from ClaimVerify.
type ClaimResult struct {
	Claimed        bool
	AlreadyClaimed bool
	// NotYetAvailable marks a claim against a transfer that is still
	// pending on-chain verification; a normal condition, not an
	// error.
	NotYetAvailable bool
	Transfer        *models.Transfer
	WalletAddress   string
	WalletBalance   string
}

// ClaimVerify checks the presented handle against the transfer's
// recipient and transitions confirmed -> claimed. Claiming an
// already-claimed transfer is idempotent: the stored record is
// returned unchanged.
func (m *Manager) ClaimVerify(ctx context.Context, claimToken, presentedHandle string) (*ClaimResult, error) {
	if err := validation.ValidateHandle(presentedHandle); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid handle", err)
	}

	transfer, err := m.store.GetTransferByClaimToken(ctx, claimToken)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errs.New(errs.NotFound, "claim not found or expired")
	}

	normalized := models.NormalizeHandle(presentedHandle)
	if transfer.RecipientHandle != normalized {
		return nil, errs.New(errs.HandleMismatch, "handle does not match recipient")
	}

	switch transfer.Status {
	case models.StatusClaimed:
		return m.claimView(ctx, transfer, false, true)
	case models.StatusPending:
		return &ClaimResult{NotYetAvailable: true, Transfer: transfer}, nil
	case models.StatusFailed:
		return nil, errs.Newf(errs.InvalidStateTransition, "transfer %s failed", transfer.ID)
	}

	claimed, err := m.store.MarkTransferClaimed(ctx, claimToken)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		// Raced with another claim; re-read the settled record.
		current, err := m.store.GetTransferByClaimToken(ctx, claimToken)
		if err != nil {
			return nil, err
		}
		if current == nil || current.Status != models.StatusClaimed {
			return nil, errs.Newf(errs.InvalidStateTransition,
				"transfer %s is no longer claimable", transfer.ID)
		}
		return m.claimView(ctx, current, false, true)
	}

	m.logger.Info().
		Str("transferId", claimed.ID).
		Str("handle", normalized).
		Msg("Transfer claimed")

	if err := m.emitter.EmitEvent(events.NewEvent(events.TypeClaimed, claimed.ID, claimed.RecipientHandle, claimed.Amount, claimed.TxHash)); err != nil {
		m.logger.Warn().Err(err).Str("transferId", claimed.ID).Msg("Failed to emit claimed event")
	}

	return m.claimView(ctx, claimed, true, false)
}

func (m *Manager) claimView(ctx context.Context, transfer *models.Transfer, claimed, already bool) (*ClaimResult, error) {
	wallet, err := m.wallets.Wallet(ctx, transfer.RecipientHandle)
	if err != nil {
		return nil, err
	}
	return &ClaimResult{
		Claimed:        claimed,
		AlreadyClaimed: already,
		Transfer:       transfer,
		WalletAddress:  wallet.Address,
		WalletBalance:  m.wallets.Balance(ctx, wallet.Address),
	}, nil
}

// PendingClaims lists confirmed, unclaimed transfers for a handle.
func (m *Manager) PendingClaims(ctx context.Context, handle string) ([]models.Transfer, error) {
	return m.store.ListUnclaimedForRecipient(ctx, models.NormalizeHandle(handle))
}

// WithdrawResult is returned from Withdraw.
type WithdrawResult struct {
	TxHash      string `json:"txHash"`
	Amount      string `json:"amount"`
	ExplorerURL string `json:"explorerUrl"`
}

// Withdraw moves funds from a handle's custodial wallet to an
// external address, either a given amount or the whole balance.
func (m *Manager) Withdraw(ctx context.Context, handle, toAddress, amount string, withdrawAll bool) (*WithdrawResult, error) {
	if err := validation.ValidateAddress(toAddress); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid destination address", err)
	}

	var txHash string
	var sent *big.Int
	if withdrawAll {
		hash, units, err := m.wallets.SendAll(ctx, handle, toAddress)
		if err != nil {
			return nil, err
		}
		txHash, sent = hash, units
	} else {
		if err := validation.ValidateAmount(amount); err != nil {
			return nil, errs.Wrap(errs.Invalid, "invalid amount", err)
		}
		requested, err := token.ParseAmount(amount)
		if err != nil {
			return nil, errs.Wrap(errs.Invalid, "invalid amount", err)
		}
		hash, units, err := m.wallets.Send(ctx, handle, toAddress, requested)
		if err != nil {
			return nil, err
		}
		txHash, sent = hash, units
	}

	amountStr := token.FormatUnits(sent)

	m.logger.Info().
		Str("handle", models.NormalizeHandle(handle)).
		Str("to", toAddress).
		Str("amount", amountStr).
		Str("txHash", txHash).
		Msg("Withdrawal submitted")

	if err := m.emitter.EmitEvent(events.NewEvent(events.TypeWithdrawn, "", models.NormalizeHandle(handle), amountStr, txHash)); err != nil {
		m.logger.Warn().Err(err).Str("txHash", txHash).Msg("Failed to emit withdrawn event")
	}

	return &WithdrawResult{
		TxHash:      txHash,
		Amount:      amountStr,
		ExplorerURL: m.verifier.ExplorerURL(txHash),
	}, nil
}

// WalletInfo is the public view of a custodial wallet.
type WalletInfo struct {
	Handle  string `json:"handle"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// CreatedWallet is the response to an explicit wallet creation.
type CreatedWallet struct {
	Handle  string `json:"handle"`
	Address string `json:"address"`
	Balance string `json:"balance"`
	IsNew   bool   `json:"isNew"`
}

// CreateWallet provisions the custodial wallet for a handle on
// request, or returns the existing one with IsNew false.
func (m *Manager) CreateWallet(ctx context.Context, handle string) (*CreatedWallet, error) {
	if err := validation.ValidateHandle(handle); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid handle", err)
	}
	wallet, created, err := m.wallets.Provision(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &CreatedWallet{
		Handle:  wallet.Handle,
		Address: wallet.Address,
		Balance: m.wallets.Balance(ctx, wallet.Address),
		IsNew:   created,
	}, nil
}

// GetWallet returns the wallet and live balance for a handle.
func (m *Manager) GetWallet(ctx context.Context, handle string) (*WalletInfo, error) {
	wallet, err := m.wallets.Wallet(ctx, handle)
	if err != nil {
		return nil, err
	}
	return &WalletInfo{
		Handle:  wallet.Handle,
		Address: wallet.Address,
		Balance: m.wallets.Balance(ctx, wallet.Address),
	}, nil
}

// GetBalance returns the token balance for a raw address.
func (m *Manager) GetBalance(ctx context.Context, address string) (string, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return "", errs.Wrap(errs.Invalid, "invalid address", err)
	}
	return m.wallets.Balance(ctx, address), nil
}
