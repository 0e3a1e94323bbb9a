package alerts

import "time"

// Task type constants
const (
	TaskPurchaseCreated   = "ledger:purchase_created"
	TaskPurchaseCompleted = "ledger:purchase_completed"
	TaskPurchaseDisputed  = "ledger:purchase_disputed"
	TaskReviewLeft        = "ledger:review_left"
)

// Queue is the asynq queue ledger events are enqueued on.
const Queue = "ledger"

// Event is the payload of every ledger notification task.
type Event struct {
	Type       string    `json:"type"`
	PurchaseID string    `json:"purchase_id"`
	ListingID  string    `json:"listing_id,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	Seller     string    `json:"seller,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Price      int64     `json:"price,omitempty"`
	Fee        int64     `json:"fee,omitempty"`
	Rating     int       `json:"rating,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
