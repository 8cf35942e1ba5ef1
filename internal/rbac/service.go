package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the user has no membership in the company.
var ErrNotFound = errors.New("rbac: not found")

// Store loads memberships.
type Store interface {
	Membership(ctx context.Context, userID, companyID int64) (Membership, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs the pgx-backed membership store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) Membership(ctx context.Context, userID, companyID int64) (Membership, error) {
	m := Membership{UserID: userID, CompanyID: companyID}
	err := s.pool.QueryRow(ctx, `SELECT role FROM company_users WHERE user_id=$1 AND company_id=$2`, userID, companyID).Scan(&m.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	return m, err
}

// Service answers company access questions through an injected cache.
type Service struct {
	store Store
	cache *AccessCache
}

// NewService constructs a Service. A nil cache queries the store every time.
func NewService(store Store, cache *AccessCache) *Service {
	return &Service{store: store, cache: cache}
}

// Membership resolves the user's role in the company. ok is false when the
// user has no access.
func (s *Service) Membership(ctx context.Context, userID, companyID int64) (m Membership, ok bool, err error) {
	if cached, hit := s.cache.Get(userID, companyID); hit {
		return cached, cached.Role != "", nil
	}
	m, err = s.store.Membership(ctx, userID, companyID)
	if errors.Is(err, ErrNotFound) {
		s.cache.Set(userID, companyID, Membership{})
		return Membership{}, false, nil
	}
	if err != nil {
		return Membership{}, false, err
	}
	s.cache.Set(userID, companyID, m)
	return m, m.Role != "", nil
}

// HasCompanyAccess reports whether the user belongs to the company.
func (s *Service) HasCompanyAccess(ctx context.Context, userID, companyID int64) (bool, error) {
	_, ok, err := s.Membership(ctx, userID, companyID)
	return ok, err
}

// Invalidate forgets a cached answer after membership changes.
func (s *Service) Invalidate(userID, companyID int64) {
	s.cache.Delete(userID, companyID)
}
