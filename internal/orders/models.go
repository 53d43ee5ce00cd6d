package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Status         Status          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []OrderItem     `json:"items,omitempty"`
	Proof          *PaymentProof   `json:"payment_proof,omitempty"`
}

type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type PaymentProof struct {
	ID          string    `json:"id"`
	ObjectKey   string    `json:"object_key"`
	URL         string    `json:"url"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// StatusInfo is what the status endpoint serves and caches. The owner
// travels with it so a cached entry can be access-checked.
type StatusInfo struct {
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineInput is one cart line handed to CreateWithProof.
type LineInput struct {
	ProductID int64
	Qty       int
}

type ProofInput struct {
	ObjectKey   string
	URL         string
	Filename    string
	ContentType string
	Size        int64
}

type NewOrder struct {
	UserID         string
	IdempotencyKey string
	Items          []LineInput
	Proof          ProofInput
}

// Total sums the line subtotals.
func Total(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}
