package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/shared"
)

var (
	// ErrDuplicateCode indicates an account code already used by the company.
	ErrDuplicateCode = fmt.Errorf("accounting: account code already exists: %w", shared.ErrInvalidState)
	// ErrInvalidParent indicates a parent that does not exist in the company.
	ErrInvalidParent = fmt.Errorf("accounting: invalid parent account: %w", shared.ErrValidation)
)

// CacheInvalidator drops cached reports after the chart of accounts changes.
type CacheInvalidator interface {
	Bump(ctx context.Context, companyID int64) error
}

// Service maintains the chart of accounts.
type Service struct {
	repo   Repository
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService constructs the chart of accounts service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, logger: slog.Default()}
}

// WithCache wires report cache invalidation.
func (s *Service) WithCache(cache CacheInvalidator) { s.cache = cache }

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// List returns accounts ordered by code; inactive accounts only when asked.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]accounting.Account, error) {
	return s.repo.List(ctx, companyID, filter)
}

// Create validates and inserts a new account. A parent must belong to the
// same company; its type may differ from the child's.
func (s *Service) Create(ctx context.Context, in CreateInput) (accounting.Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return accounting.Account{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	if !in.Type.Valid() {
		return accounting.Account{}, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, in.Type)
	}
	if !in.Subtype.Valid() {
		return accounting.Account{}, fmt.Errorf("%w: unknown account subtype %q", shared.ErrValidation, in.Subtype)
	}
	if in.ParentID != nil {
		_, err := s.repo.Get(ctx, in.CompanyID, *in.ParentID)
		if errors.Is(err, accounting.ErrAccountNotFound) {
			return accounting.Account{}, fmt.Errorf("%w: parent %d not found", ErrInvalidParent, *in.ParentID)
		}
		if err != nil {
			return accounting.Account{}, err
		}
	}
	account, err := s.repo.Insert(ctx, in)
	if err != nil {
		return accounting.Account{}, err
	}
	s.invalidate(ctx, in.CompanyID)
	return account, nil
}

// Deactivate hides an account from new postings and from reports. Accounts
// are never hard deleted.
func (s *Service) Deactivate(ctx context.Context, companyID, id int64) error {
	if err := s.repo.SetActive(ctx, companyID, id, false); err != nil {
		return err
	}
	s.invalidate(ctx, companyID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, companyID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, companyID); err != nil {
		s.logger.Warn("report cache bump failed", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
}
