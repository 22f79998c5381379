package override

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/model"
)

func TestFileRepository_MissingFileIsEmpty(t *testing.T) {
	repo := NewFileRepository(filepath.Join(t.TempDir(), "session.json"))

	ovs, err := repo.LoadOverrides(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ovs)

	keys, err := repo.LoadExclusions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileRepository_RoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	repo := NewFileRepository(path)

	src := New()
	require.NoError(t, src.Set(model.Key{Client: "100", Order: "A1"}, model.StatusRejected, "wrong address"))
	require.NoError(t, src.Set(model.Key{Client: "200", Order: "B1"}, model.StatusApproved, ""))
	require.NoError(t, src.Exclude(model.Key{Client: "500", Order: "A2"}))
	require.NoError(t, src.Export(ctx, repo))

	_, err := os.Stat(path)
	require.NoError(t, err)

	dst := New()
	require.NoError(t, dst.Import(ctx, repo))

	ov, ok := dst.Get(model.Key{Client: "100", Order: "A1"})
	require.True(t, ok)
	assert.Equal(t, model.StatusRejected, ov.Status)
	assert.Equal(t, "wrong address", ov.Reason)
	assert.Len(t, dst.All(), 2)
	assert.True(t, dst.IsExcluded(model.Key{Client: "500", Order: "A2"}))
}

func TestFileRepository_SaveKeepsOtherHalf(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, repo.SaveExclusions(ctx, []model.Key{{Client: "1", Order: "X"}}))
	require.NoError(t, repo.SaveOverrides(ctx, []model.Override{{Key: model.Key{Client: "2", Order: "Y"}, Status: model.StatusApproved}}))

	keys, err := repo.LoadExclusions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Client: "1", Order: "X"}}, keys)
}

func TestFileRepository_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileRepository(path).LoadOverrides(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override: parse")
}

func TestFileRepository_ImportRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, repo.SaveOverrides(ctx, []model.Override{
		{Key: model.Key{Client: "1", Order: "X"}, Status: model.StatusRejected},
	}))

	s := New()
	err := s.Import(ctx, repo)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, s.All())
}
