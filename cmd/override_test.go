package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/override"
)

func TestWithSession_PersistsBetweenCalls(t *testing.T) {
	useConfig(t, t.TempDir())
	ctx := t.Context()

	require.NoError(t, withSession(ctx, true, func(s *override.Store) error {
		if err := s.Set(model.Key{Client: "100", Order: "A1"}, model.StatusRejected, "no signal at address"); err != nil {
			return err
		}
		return s.Exclude(model.Key{Client: "500", Order: "A2"})
	}))

	require.NoError(t, withSession(ctx, false, func(s *override.Store) error {
		ov, ok := s.Get(model.Key{Client: "100", Order: "A1"})
		require.True(t, ok)
		assert.Equal(t, "no signal at address", ov.Reason)
		assert.True(t, s.IsExcluded(model.Key{Client: "500", Order: "A2"}))
		return nil
	}))

	require.NoError(t, withSession(ctx, true, func(s *override.Store) error {
		s.Delete(model.Key{Client: "100", Order: "A1"})
		s.Include(model.Key{Client: "500", Order: "A2"})
		return nil
	}))

	require.NoError(t, withSession(ctx, false, func(s *override.Store) error {
		assert.Empty(t, s.All())
		assert.Empty(t, s.Excluded())
		return nil
	}))
}

func TestWithSession_ValidationAbortsSave(t *testing.T) {
	useConfig(t, t.TempDir())
	ctx := t.Context()

	err := withSession(ctx, true, func(s *override.Store) error {
		return s.Set(model.Key{Client: "100", Order: "A1"}, model.StatusPartiallyRejected, "  ")
	})
	require.Error(t, err)
	assert.True(t, override.IsValidation(err))

	require.NoError(t, withSession(ctx, false, func(s *override.Store) error {
		assert.Empty(t, s.All())
		return nil
	}))
}

func TestWithSession_FileExportImport(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, dir)
	ctx := t.Context()
	path := filepath.Join(dir, "handoff.json")

	require.NoError(t, withSession(ctx, true, func(s *override.Store) error {
		return s.Set(model.Key{Client: "100", Order: "A1"}, model.StatusApproved, "")
	}))
	require.NoError(t, withSession(ctx, false, func(s *override.Store) error {
		return s.Export(ctx, override.NewFileRepository(path))
	}))

	// A second auditor with an empty store picks up the file.
	useConfig(t, t.TempDir())
	require.NoError(t, withSession(ctx, true, func(s *override.Store) error {
		return s.Import(ctx, override.NewFileRepository(path))
	}))
	require.NoError(t, withSession(ctx, false, func(s *override.Store) error {
		assert.Len(t, s.All(), 1)
		return nil
	}))
}

func TestFormatOverrides(t *testing.T) {
	at := time.Date(2026, 3, 31, 9, 15, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatOverrides(&buf, []model.Override{
		{Key: model.Key{Client: "100", Order: "A1"}, Status: model.StatusRejected, Reason: "customer disputes the installation date and the equipment serial", SetAt: at},
	}, []model.Key{{Client: "500", Order: "A2"}})

	out := buf.String()
	assert.Contains(t, out, "CLIENT")
	assert.Contains(t, out, "REJECTED")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "2026-03-31 09:15")
	assert.Contains(t, out, "Excluded (1):")
	assert.Contains(t, out, "500|A2")
}

func TestFormatOverrides_NoExclusions(t *testing.T) {
	var buf bytes.Buffer
	formatOverrides(&buf, nil, nil)
	assert.NotContains(t, buf.String(), "Excluded")
}
