package database

import (
	"context"
	"database/sql"
	"errors"
)

// SaveChatChannel upserts the notification channel for a handle.
func (s *Store) SaveChatChannel(ctx context.Context, handle string, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_channels (handle, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (handle) DO UPDATE SET chat_id = $2, updated_at = now()
	`, handle, chatID)
	return err
}

// GetChatChannel returns the registered chat id for a handle.
// ok is false when the handle has no registered channel.
func (s *Store) GetChatChannel(ctx context.Context, handle string) (chatID int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT chat_id FROM chat_channels WHERE handle = $1`, handle,
	).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chatID, true, nil
}
