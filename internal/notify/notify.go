package notify

import "context"

// Delivery reports the outcome of a notification attempt. A failed
// delivery is a side-channel status, never an error for the owning
// operation.
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// Notifier sends a best-effort claim notice to a recipient handle.
type Notifier interface {
	NotifyRecipient(ctx context.Context, handle, amount, claimToken, senderHandle string) Delivery
}

// Nop discards all notifications. Used when no bot is configured.
type Nop struct{}

func (Nop) NotifyRecipient(context.Context, string, string, string, string) Delivery {
	return Delivery{Delivered: false, Reason: "notifications disabled"}
}
