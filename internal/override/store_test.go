package override

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/model"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) SaveOverrides(ctx context.Context, overrides []model.Override) error {
	return m.Called(ctx, overrides).Error(0)
}

func (m *mockRepository) LoadOverrides(ctx context.Context) ([]model.Override, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Override), args.Error(1)
}

func (m *mockRepository) SaveExclusions(ctx context.Context, keys []model.Key) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockRepository) LoadExclusions(ctx context.Context) ([]model.Key, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Key), args.Error(1)
}

var key = model.Key{Client: "123", Order: "OS1"}

func TestSet_RejectionWithoutReason(t *testing.T) {
	t.Parallel()

	for _, status := range []model.PaymentStatus{model.StatusRejected, model.StatusPartiallyRejected} {
		for _, reason := range []string{"", "   ", "-", "sem motivo", "No motive given", "NO_MOTIVE_GIVEN"} {
			s := New()
			err := s.Set(key, status, reason)
			require.Error(t, err, "%s %q", status, reason)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), "reason is required")

			_, ok := s.Get(key)
			assert.False(t, ok)
			assert.Empty(t, s.All())
		}
	}
}

func TestSet_RejectionKeepsPreviousOnFailure(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Set(key, model.StatusApproved, ""))

	err := s.Set(key, model.StatusRejected, "")
	require.Error(t, err)

	ov, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, ov.Status)
}

func TestSet_LastWriteWins(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Set(key, model.StatusRejected, "cliente cancelou"))
	require.NoError(t, s.Set(model.Key{Client: " 123", Order: "os1 "}, model.StatusApprovedWithNote, "foto refeita"))

	ov, ok := s.Get(model.Key{Client: "123", Order: "OS1"})
	require.True(t, ok)
	assert.Equal(t, model.StatusApprovedWithNote, ov.Status)
	assert.Equal(t, "foto refeita", ov.Reason)
	assert.Len(t, s.All(), 1)
	assert.False(t, ov.SetAt.IsZero())
}

func TestSet_InvalidInput(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Set(model.Key{Client: "123"}, model.StatusApproved, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty key")

	err = s.Set(key, "APROVADO", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Set(key, model.StatusApproved, ""))
	s.Delete(model.Key{Client: "123", Order: "os1"})
	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestExclusions(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Exclude(model.Key{Client: "500", Order: "a2"}))
	assert.True(t, s.IsExcluded(model.Key{Client: "500", Order: "A2"}))
	assert.Equal(t, []model.Key{{Client: "500", Order: "A2"}}, s.Excluded())

	s.Include(model.Key{Client: "500", Order: "A2"})
	assert.False(t, s.IsExcluded(model.Key{Client: "500", Order: "A2"}))

	require.Error(t, s.Exclude(model.Key{}))
}

func TestIsExcluded_NormalizesKey(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Exclude(model.Key{Client: "500", Order: "A2"}))
	assert.True(t, s.IsExcluded(model.Key{Client: " 500 ", Order: "a2"}))
	assert.True(t, s.IsExcluded(model.Key{Client: "500", Order: "a2\t"}))
	assert.False(t, s.IsExcluded(model.Key{Client: "500", Order: "A3"}))
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Set(key, model.StatusApproved, ""))
	require.NoError(t, s.Exclude(key))
	s.Reset()
	assert.Empty(t, s.All())
	assert.Empty(t, s.Excluded())
}

func TestExport(t *testing.T) {
	s := New()
	require.NoError(t, s.Set(key, model.StatusRejected, "duplicada"))
	require.NoError(t, s.Exclude(model.Key{Client: "500", Order: "A2"}))

	repo := new(mockRepository)
	repo.On("SaveOverrides", mock.Anything, mock.MatchedBy(func(ovs []model.Override) bool {
		return len(ovs) == 1 && ovs[0].Status == model.StatusRejected && ovs[0].Reason == "duplicada"
	})).Return(nil)
	repo.On("SaveExclusions", mock.Anything, []model.Key{{Client: "500", Order: "A2"}}).Return(nil)

	require.NoError(t, s.Export(context.Background(), repo))
	repo.AssertExpectations(t)
}

func TestExport_Error(t *testing.T) {
	s := New()
	repo := new(mockRepository)
	repo.On("SaveOverrides", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	err := s.Export(context.Background(), repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export overrides")
}

func TestImport(t *testing.T) {
	repo := new(mockRepository)
	repo.On("LoadOverrides", mock.Anything).Return([]model.Override{
		{Key: model.Key{Client: "123", Order: "os1"}, Status: model.StatusApproved},
	}, nil)
	repo.On("LoadExclusions", mock.Anything).Return([]model.Key{{Client: "500", Order: "A2"}}, nil)

	s := New()
	require.NoError(t, s.Import(context.Background(), repo))

	ov, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, ov.Status)
	assert.True(t, s.IsExcluded(model.Key{Client: "500", Order: "A2"}))
}

func TestImport_InvalidLeavesStoreUntouched(t *testing.T) {
	repo := new(mockRepository)
	repo.On("LoadOverrides", mock.Anything).Return([]model.Override{
		{Key: model.Key{Client: "1", Order: "A"}, Status: model.StatusApproved},
		{Key: model.Key{Client: "2", Order: "B"}, Status: model.StatusRejected},
	}, nil)
	repo.On("LoadExclusions", mock.Anything).Return([]model.Key{}, nil)

	s := New()
	err := s.Import(context.Background(), repo)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, s.All())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set(key, model.StatusApproved, "")
			_, _ = s.Get(key)
			_ = s.IsExcluded(key)
			_ = s.All()
		}()
	}
	wg.Wait()
	assert.Len(t, s.All(), 1)
}
