package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/tallybooks/tallybooks/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxExportRows   = 10000
)

// Page is one page of the timeline.
type Page struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service serves the company audit timeline.
type Service struct {
	repo Repository
}

// NewService builds the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of events, newest first.
func (s *Service) Timeline(ctx context.Context, companyID int64, f Filters) (Page, error) {
	if s.repo == nil {
		return Page{}, errors.New("audit: repository not configured")
	}
	q, err := buildQuery(companyID, f)
	if err != nil {
		return Page{}, err
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	total, err := s.repo.Count(ctx, q)
	if err != nil {
		return Page{}, err
	}
	paging := shared.NewPagination(f.Page, pageSize, total)
	q.Limit = int32(paging.PerPage)
	q.Offset = int32(paging.Offset())
	entries, err := s.repo.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Pagination: paging}, nil
}

// Export returns every matching event for a CSV download.
func (s *Service) Export(ctx context.Context, companyID int64, f Filters) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	q, err := buildQuery(companyID, f)
	if err != nil {
		return nil, err
	}
	q.Limit = maxExportRows
	return s.repo.List(ctx, q)
}

func buildQuery(companyID int64, f Filters) (Query, error) {
	if companyID <= 0 {
		return Query{}, fmt.Errorf("%w: company required", shared.ErrValidation)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return Query{}, fmt.Errorf("%w: from must be before to", shared.ErrValidation)
	}
	return Query{
		CompanyID: companyID,
		From:      toPgTime(f.From),
		To:        toPgTime(f.To),
		ActorID:   optionalID(f.ActorID),
		Entity:    optionalText(f.Entity),
		EntityID:  optionalText(f.EntityID),
		Action:    optionalText(f.Action),
	}, nil
}
