// Package account defines payment account records: external payout handles a
// user registers so payers know where to send money.
package account

import "time"

// Type identifies the external payment network behind a handle.
type Type string

const (
	TypeVenmo   Type = "venmo"
	TypeZelle   Type = "zelle"
	TypePaypal  Type = "paypal"
	TypeCashApp Type = "cash_app"
)

// Types lists every supported account type.
func Types() []Type {
	return []Type{TypeVenmo, TypeZelle, TypePaypal, TypeCashApp}
}

// ValidType reports whether t is a supported account type.
func ValidType(t Type) bool {
	switch t {
	case TypeVenmo, TypeZelle, TypePaypal, TypeCashApp:
		return true
	}
	return false
}

// Status describes whether an account is visible on public pay pages.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// ValidStatus reports whether s is a known account status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Account is a payment handle owned by a user. Only active accounts resolve
// on the public pay pages.
type Account struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	Handle      string            `json:"handle"`
	Type        Type              `json:"type"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
