package mappings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/accounting"
	_ "github.com/tallybooks/tallybooks/testing"
)

type memoryRepo struct {
	accounts map[int64]accounting.Account
	roles    map[int64]map[Role]int64
	writes   int
}

func newMemoryRepo(accounts ...accounting.Account) *memoryRepo {
	repo := &memoryRepo{accounts: map[int64]accounting.Account{}, roles: map[int64]map[Role]int64{}}
	for _, a := range accounts {
		repo.accounts[a.ID] = a
	}
	return repo
}

func (r *memoryRepo) Get(_ context.Context, companyID int64, role Role) (AccountRole, error) {
	id, ok := r.roles[companyID][role]
	if !ok {
		return AccountRole{}, accounting.ErrMappingNotFound
	}
	return AccountRole{CompanyID: companyID, Role: role, AccountID: id}, nil
}

func (r *memoryRepo) List(_ context.Context, companyID int64) ([]AccountRole, error) {
	var out []AccountRole
	for _, role := range Roles() {
		if id, ok := r.roles[companyID][role]; ok {
			out = append(out, AccountRole{CompanyID: companyID, Role: role, AccountID: id})
		}
	}
	return out, nil
}

func (r *memoryRepo) GetAccount(_ context.Context, companyID, accountID int64) (accounting.Account, error) {
	a, ok := r.accounts[accountID]
	if !ok || a.CompanyID != companyID {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepo) Upsert(_ context.Context, roles []AccountRole) error {
	r.writes++
	for _, m := range roles {
		if r.roles[m.CompanyID] == nil {
			r.roles[m.CompanyID] = map[Role]int64{}
		}
		r.roles[m.CompanyID][m.Role] = m.AccountID
	}
	return nil
}

func seededRepo() *memoryRepo {
	return newMemoryRepo(
		accounting.Account{ID: 1, CompanyID: 10, Code: "1100", Type: accounting.AccountTypeAsset, IsActive: true},
		accounting.Account{ID: 2, CompanyID: 10, Code: "2000", Type: accounting.AccountTypeLiability, IsActive: true},
		accounting.Account{ID: 3, CompanyID: 10, Code: "1000", Type: accounting.AccountTypeAsset, IsActive: true, Subtype: accounting.AccountSubtypeCash},
		accounting.Account{ID: 4, CompanyID: 10, Code: "1900", Type: accounting.AccountTypeAsset, IsActive: false},
		accounting.Account{ID: 5, CompanyID: 20, Code: "1100", Type: accounting.AccountTypeAsset, IsActive: true},
	)
}

func TestResolveMissingRoleFailsLoudly(t *testing.T) {
	svc := NewService(seededRepo())
	_, err := svc.Resolve(context.Background(), 10, RoleAccountsReceivable)
	require.ErrorIs(t, err, accounting.ErrMappingNotFound)
}

func TestAssignAndResolve(t *testing.T) {
	svc := NewService(seededRepo())
	ctx := context.Background()

	_, err := svc.Assign(ctx, 10, RoleAccountsReceivable, 1)
	require.NoError(t, err)
	id, err := svc.Resolve(ctx, 10, RoleAccountsReceivable)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
}

func TestAssignRejectsInvalidAccounts(t *testing.T) {
	svc := NewService(seededRepo())
	ctx := context.Background()

	_, err := svc.Assign(ctx, 10, RoleAccountsPayable, 1)
	require.ErrorIs(t, err, ErrRoleAccountType)

	_, err = svc.Assign(ctx, 10, RoleCash, 4)
	require.ErrorIs(t, err, accounting.ErrAccountInactive)

	_, err = svc.Assign(ctx, 10, RoleAccountsReceivable, 5)
	require.ErrorIs(t, err, accounting.ErrAccountNotFound)

	_, err = svc.Assign(ctx, 10, Role("UNDEPOSITED_FUNDS"), 1)
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestSetupIsAllOrNothing(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)
	ctx := context.Background()

	err := svc.Setup(ctx, 10, map[Role]int64{
		RoleAccountsReceivable: 1,
		RoleAccountsPayable:    1,
	})
	require.ErrorIs(t, err, ErrRoleAccountType)
	require.Zero(t, repo.writes)

	err = svc.Setup(ctx, 10, map[Role]int64{
		RoleAccountsReceivable: 1,
		RoleAccountsPayable:    2,
		RoleCash:               3,
	})
	require.NoError(t, err)
	require.Equal(t, 1, repo.writes)

	roles, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, roles, 3)
}
