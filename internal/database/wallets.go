package database

import (
	"context"
	"database/sql"
	"errors"

	"pingpay/internal/models"
)

// CreateWallet inserts a wallet for a normalized handle. When a
// concurrent insert for the same handle wins the race, the stored
// wallet is returned and the supplied keypair is discarded, so every
// caller observes the same single wallet per handle.
func (s *Store) CreateWallet(ctx context.Context, handle, address, privateKey string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO wallets (handle, address, private_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (handle) DO NOTHING
		RETURNING handle, address, private_key, created_at
	`, handle, address, privateKey).Scan(&w.Handle, &w.Address, &w.PrivateKey, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race: the unique constraint kept the first wallet.
		return s.GetWalletByHandle(ctx, handle)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletByHandle retrieves a wallet by its normalized handle.
// Returns (nil, nil) when no wallet exists.
func (s *Store) GetWalletByHandle(ctx context.Context, handle string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, `
		SELECT handle, address, private_key, created_at
		FROM wallets WHERE handle = $1
	`, handle).Scan(&w.Handle, &w.Address, &w.PrivateKey, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWalletByAddress retrieves a wallet by its chain address.
// Returns (nil, nil) when no wallet exists.
func (s *Store) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, `
		SELECT handle, address, private_key, created_at
		FROM wallets WHERE lower(address) = lower($1)
	`, address).Scan(&w.Handle, &w.Address, &w.PrivateKey, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
