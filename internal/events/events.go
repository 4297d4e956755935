package events

import (
	"time"

	"github.com/rs/zerolog"

	"pingpay/internal/models"
)

// Lifecycle event types published on transfer transitions.
const (
	TypeConfirmed = "transfer.confirmed"
	TypeClaimed   = "transfer.claimed"
	TypeWithdrawn = "transfer.withdrawn"
)

// Emitter publishes transfer lifecycle events. Emission is best
// effort: a failed emit never rolls back a ledger transition.
type Emitter interface {
	EmitEvent(event models.TransferEvent) error
}

// NewEvent builds a lifecycle event stamped with the current time.
func NewEvent(eventType, transferID, recipientHandle, amount, txHash string) models.TransferEvent {
	return models.TransferEvent{
		Type:            eventType,
		TransferID:      transferID,
		RecipientHandle: recipientHandle,
		Amount:          amount,
		TxHash:          txHash,
		Timestamp:       time.Now().UTC(),
	}
}

// LogEmitter logs each event and forwards to a wrapped emitter when
// one is configured.
type LogEmitter struct {
	Wrapped Emitter
	Logger  zerolog.Logger
}

func (l *LogEmitter) EmitEvent(event models.TransferEvent) error {
	l.Logger.Info().
		Str("type", event.Type).
		Str("transferId", event.TransferID).
		Str("handle", event.RecipientHandle).
		Str("amount", event.Amount).
		Str("txHash", event.TxHash).
		Msg("Transfer lifecycle event")

	if l.Wrapped != nil {
		return l.Wrapped.EmitEvent(event)
	}
	return nil
}
