package database

import (
	"context"
	"database/sql"
	"errors"

	"pingpay/internal/models"
)

const transferColumns = `
	id, sender_address, COALESCE(sender_handle, ''), recipient_handle,
	recipient_address, amount, status, claim_token,
	COALESCE(tx_hash, ''), COALESCE(block_number, 0), created_at, claimed_at`

func scanTransfer(row interface{ Scan(...interface{}) error }) (*models.Transfer, error) {
	var t models.Transfer
	var claimedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.SenderAddress, &t.SenderHandle, &t.RecipientHandle,
		&t.RecipientAddress, &t.Amount, &t.Status, &t.ClaimToken,
		&t.TxHash, &t.BlockNumber, &t.CreatedAt, &claimedAt,
	)
	if err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.Time
	}
	return &t, nil
}

// CreateTransfer persists a new pending transfer.
func (s *Store) CreateTransfer(ctx context.Context, t *models.Transfer) error {
	var senderHandle interface{}
	if t.SenderHandle != "" {
		senderHandle = t.SenderHandle
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO transfers
			(id, sender_address, sender_handle, recipient_handle,
			 recipient_address, amount, status, claim_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.SenderAddress, senderHandle, t.RecipientHandle,
		t.RecipientAddress, t.Amount, t.Status, t.ClaimToken,
	).Scan(&t.CreatedAt)
}

// GetTransferByID retrieves a transfer by id. Returns (nil, nil) when
// no transfer exists.
func (s *Store) GetTransferByID(ctx context.Context, id string) (*models.Transfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetTransferByClaimToken retrieves a transfer by its claim token.
// Returns (nil, nil) when the token matches nothing.
func (s *Store) GetTransferByClaimToken(ctx context.Context, token string) (*models.Transfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE claim_token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// MarkTransferConfirmed transitions pending -> confirmed, attaching the
// transaction hash and block number. The WHERE clause makes the
// transition conditional: exactly one concurrent caller wins, the rest
// see ok=false.
func (s *Store) MarkTransferConfirmed(ctx context.Context, id, txHash string, blockNumber uint64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transfers
		SET status = 'confirmed', tx_hash = $2, block_number = $3
		WHERE id = $1 AND status = 'pending'
	`, id, txHash, blockNumber)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkTransferClaimed transitions confirmed -> claimed and stamps
// claimed_at. Conditional in the same way as MarkTransferConfirmed.
func (s *Store) MarkTransferClaimed(ctx context.Context, token string) (*models.Transfer, error) {
	t, err := scanTransfer(s.db.QueryRowContext(ctx, `
		UPDATE transfers
		SET status = 'claimed', claimed_at = now()
		WHERE claim_token = $1 AND status = 'confirmed'
		RETURNING `+transferColumns, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// MarkTransferFailed transitions pending -> failed.
func (s *Store) MarkTransferFailed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transfers SET status = 'failed'
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListTransfersBySenderAddress returns transfers sent from an address,
// newest first.
func (s *Store) ListTransfersBySenderAddress(ctx context.Context, address string) ([]models.Transfer, error) {
	return s.listTransfers(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE lower(sender_address) = lower($1)
		 ORDER BY created_at DESC`, address)
}

// ListTransfersBySenderHandle returns transfers sent by a handle,
// newest first.
func (s *Store) ListTransfersBySenderHandle(ctx context.Context, handle string) ([]models.Transfer, error) {
	return s.listTransfers(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE sender_handle = $1
		 ORDER BY created_at DESC`, handle)
}

// ListUnclaimedForRecipient returns confirmed, not yet claimed
// transfers addressed to a handle, newest first.
func (s *Store) ListUnclaimedForRecipient(ctx context.Context, handle string) ([]models.Transfer, error) {
	return s.listTransfers(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE recipient_handle = $1 AND status = 'confirmed'
		 ORDER BY created_at DESC`, handle)
}

func (s *Store) listTransfers(ctx context.Context, query string, args ...interface{}) ([]models.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
