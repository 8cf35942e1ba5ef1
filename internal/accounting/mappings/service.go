package mappings

import (
	"context"
	"fmt"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// ErrUnknownRole indicates a role outside the supported vocabulary.
var ErrUnknownRole = fmt.Errorf("accounting: unknown account role: %w", shared.ErrValidation)

// ErrRoleAccountType indicates the account's type does not fit the role.
var ErrRoleAccountType = fmt.Errorf("accounting: account type does not match role: %w", shared.ErrValidation)

// Service assigns and resolves company account roles.
type Service struct {
	repo Repository
}

// NewService constructs the role service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve returns the account assigned to role. It never falls back to a
// name lookup; an unassigned role returns accounting.ErrMappingNotFound.
func (s *Service) Resolve(ctx context.Context, companyID int64, role Role) (int64, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	m, err := s.repo.Get(ctx, companyID, role)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", role, err)
	}
	return m.AccountID, nil
}

// List returns the roles configured for the company.
func (s *Service) List(ctx context.Context, companyID int64) ([]AccountRole, error) {
	return s.repo.List(ctx, companyID)
}

// Assign points role at accountID after checking ownership, activity and type.
func (s *Service) Assign(ctx context.Context, companyID int64, role Role, accountID int64) (AccountRole, error) {
	if err := s.check(ctx, companyID, role, accountID); err != nil {
		return AccountRole{}, err
	}
	m := AccountRole{CompanyID: companyID, Role: role, AccountID: accountID}
	if err := s.repo.Upsert(ctx, []AccountRole{m}); err != nil {
		return AccountRole{}, err
	}
	return m, nil
}

// Setup assigns every role supplied at company setup. Nothing is written
// unless all assignments validate.
func (s *Service) Setup(ctx context.Context, companyID int64, assignments map[Role]int64) error {
	if len(assignments) == 0 {
		return fmt.Errorf("%w: no role assignments", shared.ErrValidation)
	}
	roles := make([]AccountRole, 0, len(assignments))
	for _, role := range Roles() {
		accountID, ok := assignments[role]
		if !ok {
			continue
		}
		if err := s.check(ctx, companyID, role, accountID); err != nil {
			return err
		}
		roles = append(roles, AccountRole{CompanyID: companyID, Role: role, AccountID: accountID})
	}
	if len(roles) != len(assignments) {
		return ErrUnknownRole
	}
	return s.repo.Upsert(ctx, roles)
}

func (s *Service) check(ctx context.Context, companyID int64, role Role, accountID int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	account, err := s.repo.GetAccount(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return fmt.Errorf("%w: %s", accounting.ErrAccountInactive, account.Code)
	}
	if account.Type != role.ExpectedType() {
		return fmt.Errorf("%w: %s requires %s, account %s is %s", ErrRoleAccountType, role, role.ExpectedType(), account.Code, account.Type)
	}
	return nil
}
