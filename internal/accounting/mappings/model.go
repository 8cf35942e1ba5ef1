package mappings

import (
	"time"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// Role names a ledger function that posting rules resolve to a concrete account.
type Role string

const (
	RoleAccountsReceivable Role = "ACCOUNTS_RECEIVABLE"
	RoleAccountsPayable    Role = "ACCOUNTS_PAYABLE"
	RoleCash               Role = "CASH"
	RoleSalesTaxPayable    Role = "SALES_TAX_PAYABLE"
	RolePurchaseTax        Role = "PURCHASE_TAX"
)

// expectedTypes lists the account type each role must point at.
var expectedTypes = map[Role]accounting.AccountType{
	RoleAccountsReceivable: accounting.AccountTypeAsset,
	RoleAccountsPayable:    accounting.AccountTypeLiability,
	RoleCash:               accounting.AccountTypeAsset,
	RoleSalesTaxPayable:    accounting.AccountTypeLiability,
	RolePurchaseTax:        accounting.AccountTypeAsset,
}

// Roles returns every known role in a stable order.
func Roles() []Role {
	return []Role{RoleAccountsReceivable, RoleAccountsPayable, RoleCash, RoleSalesTaxPayable, RolePurchaseTax}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := expectedTypes[r]
	return ok
}

// ExpectedType returns the account type required for the role.
func (r Role) ExpectedType() accounting.AccountType {
	return expectedTypes[r]
}

// AccountRole links a company role to a ledger account.
type AccountRole struct {
	CompanyID int64     `json:"company_id"`
	Role      Role      `json:"role"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
