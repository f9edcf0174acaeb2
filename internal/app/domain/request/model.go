// Package request defines payment request records: amounts a user asks to be
// paid, shared through an unguessable public token link.
package request

import "time"

// Status describes the lifecycle of a payment request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// ValidStatus reports whether s is a known request status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// TokenLength is the exact length of the public share token.
const TokenLength = 64

// DefaultCurrency is used when a request is created without one.
const DefaultCurrency = "USD"

// Request is a payment request. UUID and Token are assigned once at creation
// and never change. PaidAt is set if and only if Status is StatusPaid.
type Request struct {
	ID          string            `json:"id"`
	UUID        string            `json:"uuid"`
	OwnerID     string            `json:"owner_id"`
	AccountID   string            `json:"payment_account_id,omitempty"` // optional link to one of the owner's payment accounts
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Currency    string            `json:"currency"`
	Amount      float64           `json:"amount"`
	Token       string            `json:"token"`
	Status      Status            `json:"status"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Expired reports whether the request is past its expiry at the given time.
// Expiry is display state only; it never changes the stored status.
func (r Request) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
