package accounts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// CreateInput carries a new chart of accounts node.
type CreateInput struct {
	CompanyID          int64                     `json:"-"`
	Code               string                    `json:"code" validate:"required,max=32"`
	Name               string                    `json:"name" validate:"required,max=200"`
	Type               accounting.AccountType    `json:"type" validate:"required"`
	Subtype            accounting.AccountSubtype `json:"subtype"`
	ParentID           *int64                    `json:"parent_id"`
	OpeningBalance     decimal.Decimal           `json:"opening_balance"`
	OpeningBalanceDate *time.Time                `json:"opening_balance_date"`
}

// ListFilter narrows List results.
type ListFilter struct {
	IncludeInactive bool
	Type            accounting.AccountType
}
