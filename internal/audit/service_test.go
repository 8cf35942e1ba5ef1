package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/shared"
)

type stubRepo struct {
	entries  []Entry
	total    int
	lastList Query
	lastCnt  Query
}

func (s *stubRepo) List(_ context.Context, q Query) ([]Entry, error) {
	s.lastList = q
	return s.entries, nil
}

func (s *stubRepo) Count(_ context.Context, q Query) (int, error) {
	s.lastCnt = q
	return s.total, nil
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{
		entries: []Entry{{ID: 3, Action: "transaction.void", Entity: "transaction", EntityID: "9"}},
		total:   45,
	}
	svc := NewService(repo)

	page, err := svc.Timeline(context.Background(), 1, Filters{Page: 3, PageSize: 20, Entity: " transaction ", ActorID: 7})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, shared.Pagination{Page: 3, PerPage: 20, Total: 45, TotalPages: 3}, page.Pagination)
	require.Equal(t, int32(20), repo.lastList.Limit)
	require.Equal(t, int32(40), repo.lastList.Offset)
	require.True(t, repo.lastList.Entity.Valid)
	require.Equal(t, "transaction", repo.lastList.Entity.String)
	require.Equal(t, int64(7), repo.lastList.ActorID.Int64)
	require.False(t, repo.lastCnt.Action.Valid)
	require.Zero(t, repo.lastCnt.Limit)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	page, err := NewService(repo).Timeline(context.Background(), 1, Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, int32(maxPageSize), repo.lastList.Limit)
	require.NotNil(t, page.Entries)
	require.Equal(t, 1, page.Pagination.Page)
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewService(&stubRepo{}).Timeline(context.Background(), 1, Filters{From: day, To: day})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewService(&stubRepo{}).Export(context.Background(), 0, Filters{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestExportCapsRows(t *testing.T) {
	repo := &stubRepo{}
	_, err := NewService(repo).Export(context.Background(), 2, Filters{Action: "payment.apply"})
	require.NoError(t, err)
	require.Equal(t, int32(maxExportRows), repo.lastList.Limit)
	require.Equal(t, "payment.apply", repo.lastList.Action.String)
}
