package lifecycle

import (
	"context"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pingpay/internal/chain"
	"pingpay/internal/errs"
	"pingpay/internal/events"
	"pingpay/internal/models"
	"pingpay/internal/notify"
	"pingpay/internal/token"
	"pingpay/internal/validation"
)

// Store is the ledger surface the manager needs. Conditional
// transitions (Mark*) succeed for exactly one caller; losers observe
// ok=false / nil and re-read.
type Store interface {
	CreateTransfer(ctx context.Context, t *models.Transfer) error
	GetTransferByID(ctx context.Context, id string) (*models.Transfer, error)
	GetTransferByClaimToken(ctx context.Context, claimToken string) (*models.Transfer, error)
	MarkTransferConfirmed(ctx context.Context, id, txHash string, blockNumber uint64) (bool, error)
	MarkTransferClaimed(ctx context.Context, claimToken string) (*models.Transfer, error)
	MarkTransferFailed(ctx context.Context, id string) (bool, error)
	ListTransfersBySenderAddress(ctx context.Context, address string) ([]models.Transfer, error)
	ListTransfersBySenderHandle(ctx context.Context, handle string) ([]models.Transfer, error)
	ListUnclaimedForRecipient(ctx context.Context, handle string) ([]models.Transfer, error)
}

// Wallets is the custodian surface the manager needs.
type Wallets interface {
	GetOrCreate(ctx context.Context, handle string) (*models.Wallet, error)
	Provision(ctx context.Context, handle string) (*models.Wallet, bool, error)
	Wallet(ctx context.Context, handle string) (*models.Wallet, error)
	Balance(ctx context.Context, address string) string
	Send(ctx context.Context, handle, toAddress string, amount *big.Int) (string, *big.Int, error)
	SendAll(ctx context.Context, handle, toAddress string) (string, *big.Int, error)
}

// Verifier is the chain surface the manager needs.
type Verifier interface {
	VerifyTransfer(ctx context.Context, txHash, expectedRecipient string, expectedAmount *big.Int) (*chain.VerifiedTransfer, error)
	EstimateFee(ctx context.Context) models.FeeEstimate
	ExplorerURL(txHash string) string
	TokenAddress() string
}

// Manager orchestrates the transfer state machine:
// pending -> confirmed -> claimed, or pending -> failed.
type Manager struct {
	store    Store
	wallets  Wallets
	verifier Verifier
	notifier notify.Notifier
	emitter  events.Emitter
	logger   zerolog.Logger
}

func NewManager(store Store, wallets Wallets, verifier Verifier, notifier notify.Notifier, emitter events.Emitter, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		wallets:  wallets,
		verifier: verifier,
		notifier: notifier,
		emitter:  emitter,
		logger:   logger,
	}
}

// PrepareResult is returned from Prepare.
type PrepareResult struct {
	Transfer    *models.Transfer
	FeeEstimate models.FeeEstimate
}

// Prepare resolves (or provisions) the recipient wallet and persists
// a pending transfer with a fresh claim token. Not idempotent:
// every call creates a new transfer record.
func (m *Manager) Prepare(ctx context.Context, recipientHandle, amount, senderAddress, senderHandle string) (*PrepareResult, error) {
	if err := validation.ValidateHandle(recipientHandle); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid recipient", err)
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid amount", err)
	}

	wallet, err := m.wallets.GetOrCreate(ctx, recipientHandle)
	if err != nil {
		return nil, err
	}

	if senderAddress == "" {
		senderAddress = "unknown"
	}

	transfer := &models.Transfer{
		ID:               uuid.NewString(),
		SenderAddress:    senderAddress,
		SenderHandle:     models.NormalizeHandle(senderHandle),
		RecipientHandle:  wallet.Handle,
		RecipientAddress: wallet.Address,
		Amount:           amount,
		Status:           models.StatusPending,
		ClaimToken:       uuid.NewString(),
	}
	if err := m.store.CreateTransfer(ctx, transfer); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("transferId", transfer.ID).
		Str("recipient", transfer.RecipientHandle).
		Str("amount", transfer.Amount).
		Msg("Prepared transfer")

	return &PrepareResult{
		Transfer:    transfer,
		FeeEstimate: m.verifier.EstimateFee(ctx),
	}, nil
}

// ConfirmResult is returned from Confirm.
type ConfirmResult struct {
	Transfer *models.Transfer
	Delivery notify.Delivery
}

// Confirm verifies the submitted transaction on chain and, on
// success, transitions the transfer to confirmed and notifies the
// recipient. The transition is conditional on the prior status being
// exactly pending, so concurrent confirms produce one winner and one
// notification. Verification failures leave the transfer pending and
// surface to the caller.
func (m *Manager) Confirm(ctx context.Context, transferID, txHash string) (*ConfirmResult, error) {
	if err := validation.ValidateTxHash(txHash); err != nil {
		return nil, errs.Wrap(errs.Invalid, "invalid transaction hash", err)
	}

	transfer, err := m.store.GetTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errs.Newf(errs.NotFound, "transfer %s not found", transferID)
	}
	if transfer.Status != models.StatusPending {
		return m.alreadyProgressed(transfer, txHash)
	}

	expected, err := token.ParseAmount(transfer.Amount)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, "stored amount is malformed", err)
	}

	verified, err := m.verifier.VerifyTransfer(ctx, txHash, transfer.RecipientAddress, expected)
	if err != nil {
		// Transfer stays pending; the caller may retry with the same
		// or a corrected hash.
		return nil, err
	}

	ok, err := m.store.MarkTransferConfirmed(ctx, transfer.ID, txHash, verified.BlockNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the confirm race. Re-read and report benignly when the
		// winner attached the same hash.
		current, err := m.store.GetTransferByID(ctx, transfer.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, errs.Newf(errs.NotFound, "transfer %s not found", transferID)
		}
		return m.alreadyProgressed(current, txHash)
	}

	transfer.Status = models.StatusConfirmed
	transfer.TxHash = txHash
	transfer.BlockNumber = verified.BlockNumber

	m.logger.Info().
		Str("transferId", transfer.ID).
		Str("txHash", txHash).
		Uint64("blockNumber", verified.BlockNumber).
		Msg("Transfer confirmed")

	if err := m.emitter.EmitEvent(events.NewEvent(events.TypeConfirmed, transfer.ID, transfer.RecipientHandle, transfer.Amount, txHash)); err != nil {
		m.logger.Warn().Err(err).Str("transferId", transfer.ID).Msg("Failed to emit confirmed event")
	}

	delivery := m.notifier.NotifyRecipient(ctx, transfer.RecipientHandle, transfer.Amount, transfer.ClaimToken, transfer.SenderHandle)
	if !delivery.Delivered {
		m.logger.Info().
			Str("transferId", transfer.ID).
			Str("reason", delivery.Reason).
			Msg("Recipient not notified")
	}

	return &ConfirmResult{Transfer: transfer, Delivery: delivery}, nil
}

// alreadyProgressed maps a non-pending transfer observed during
// confirm: benign when the same hash is already attached, a state
// violation otherwise.
func (m *Manager) alreadyProgressed(transfer *models.Transfer, txHash string) (*ConfirmResult, error) {
	if transfer.Status != models.StatusPending && strings.EqualFold(transfer.TxHash, txHash) {
		return &ConfirmResult{
			Transfer: transfer,
			Delivery: notify.Delivery{Delivered: false, Reason: "already processed"},
		}, nil
	}
	return nil, errs.Newf(errs.InvalidStateTransition,
		"transfer %s is %s, not pending", transfer.ID, transfer.Status)
}

// Fail transitions a pending transfer to the terminal failed state.
func (m *Manager) Fail(ctx context.Context, transferID string) error {
	transfer, err := m.store.GetTransferByID(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer == nil {
		return errs.Newf(errs.NotFound, "transfer %s not found", transferID)
	}
	ok, err := m.store.MarkTransferFailed(ctx, transferID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Newf(errs.InvalidStateTransition,
			"transfer %s is %s, not pending", transferID, transfer.Status)
	}
	return nil
}

// GetTransfer returns a transfer by id.
func (m *Manager) GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error) {
	transfer, err := m.store.GetTransferByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, errs.Newf(errs.NotFound, "transfer %s not found", transferID)
	}
	return transfer, nil
}

// ListBySender returns transfers for a sender address or handle,
// newest first.
func (m *Manager) ListBySender(ctx context.Context, sender string) ([]models.Transfer, error) {
	if strings.HasPrefix(sender, "0x") {
		return m.store.ListTransfersBySenderAddress(ctx, sender)
	}
	return m.store.ListTransfersBySenderHandle(ctx, models.NormalizeHandle(sender))
}

// ExplorerURL exposes the verifier's explorer link builder.
func (m *Manager) ExplorerURL(txHash string) string {
	return m.verifier.ExplorerURL(txHash)
}

// EstimateFee returns an advisory network fee quote for a token
// transfer.
func (m *Manager) EstimateFee(ctx context.Context) models.FeeEstimate {
	return m.verifier.EstimateFee(ctx)
}

// TokenAddress returns the token contract address.
func (m *Manager) TokenAddress() string {
	return m.verifier.TokenAddress()
}
