package accounts

import (
	"errors"
	"time"
)

// Role tags the one job an account performs for automated posting. Postings
// resolve accounts by role, never by matching display names, so renaming an
// account cannot silently break journal generation.
type Role string

const (
	RoleCash               Role = "cash"
	RoleAccountsReceivable Role = "accounts_receivable"
	RoleInventory          Role = "inventory"
	RoleAccountsPayable    Role = "accounts_payable"
	RoleSalesRevenue       Role = "sales_revenue"
	RoleVATPayable         Role = "vat_payable"
	RoleCOGS               Role = "cogs"
	RoleExpense            Role = "expense"
)

// Roles lists every known role tag.
func Roles() []Role {
	return []Role{
		RoleCash,
		RoleAccountsReceivable,
		RoleInventory,
		RoleAccountsPayable,
		RoleSalesRevenue,
		RoleVATPayable,
		RoleCOGS,
		RoleExpense,
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Type enumerates chart-of-accounts categories.
type Type string

const (
	TypeAsset     Type = "asset"
	TypeLiability Type = "liability"
	TypeEquity    Type = "equity"
	TypeIncome    Type = "income"
	TypeExpense   Type = "expense"
)

// Account models a chart of accounts node. Accounts referenced by journal
// lines are never deleted, only deactivated.
type Account struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Type      Type      `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing account.
	ErrNotFound = errors.New("accounts: not found")
	// ErrDuplicateRole indicates two active accounts claim the same role.
	ErrDuplicateRole = errors.New("accounts: duplicate active role")
	// ErrInvalidRole indicates an unknown role tag.
	ErrInvalidRole = errors.New("accounts: invalid role")
)
