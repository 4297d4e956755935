package models

import (
	"time"
)

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

const (
	StatusPending   TransferStatus = "pending"
	StatusConfirmed TransferStatus = "confirmed"
	StatusClaimed   TransferStatus = "claimed"
	StatusFailed    TransferStatus = "failed"
)

func (s TransferStatus) String() string {
	return string(s)
}

// Wallet is a custodial keypair held on behalf of a chat handle.
// The private key never leaves the service boundary.
type Wallet struct {
	Handle     string    `json:"handle"`
	Address    string    `json:"address"`
	PrivateKey string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transfer is one ledger entry moving through
// pending -> confirmed -> claimed, or pending -> failed.
type Transfer struct {
	ID               string         `json:"id"`
	SenderAddress    string         `json:"sender_address"`
	SenderHandle     string         `json:"sender_handle,omitempty"`
	RecipientHandle  string         `json:"recipient_handle"`
	RecipientAddress string         `json:"recipient_address"`
	Amount           string         `json:"amount"`
	Status           TransferStatus `json:"status"`
	ClaimToken       string         `json:"claim_token"`
	TxHash           string         `json:"tx_hash,omitempty"`
	BlockNumber      uint64         `json:"block_number,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ClaimedAt        *time.Time     `json:"claimed_at,omitempty"`
}

// TransferEvent is published on lifecycle transitions.
type TransferEvent struct {
	Type            string    `json:"type"`
	TransferID      string    `json:"transfer_id"`
	RecipientHandle string    `json:"recipient_handle"`
	Amount          string    `json:"amount"`
	TxHash          string    `json:"tx_hash,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ParsedCommand is the strict output of the command interpreter.
type ParsedCommand struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// FeeEstimate is an advisory network fee quote.
type FeeEstimate struct {
	GasLimit      string `json:"gasLimit"`
	GasPrice      string `json:"gasPrice"`
	EstimatedCost string `json:"estimatedCost"`
}
