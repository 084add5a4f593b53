package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anigiffy/internal/config"
	"anigiffy/internal/ledger"
	"anigiffy/internal/testsupport"
)

func openStore(t *testing.T, cfg *config.Config) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, testsupport.NewConfig(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []ledger.Kind{ledger.KindPreview, ledger.KindFull, ledger.KindFull} {
		_, err := store.Record(ctx, ledger.Job{
			SessionID: "alpha",
			Kind:      kind,
			Project:   "demo",
			Status:    ledger.StatusSucceeded,
			Frames:    3 + i,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	failed, err := store.Record(ctx, ledger.Job{
		SessionID: "beta",
		Kind:      ledger.KindFull,
		Status:    ledger.StatusFailed,
		ErrorKind: "no_valid_frames",
		Message:   "no valid frames to create GIF",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, failed.ID)
	assert.False(t, failed.CreatedAt.IsZero())

	jobs, err := store.ListBySession(ctx, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, 5, jobs[0].Frames, "newest job first")
	assert.Equal(t, base.Add(2*time.Second), jobs[0].CreatedAt)

	limited, err := store.ListBySession(ctx, "alpha", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"preview/succeeded": 1,
		"full/succeeded":    2,
		"full/failed":       1,
	}, stats)
}

func TestPruneBefore(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, testsupport.NewConfig(t))
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Record(ctx, ledger.Job{SessionID: "s", Kind: ledger.KindPreview, Status: ledger.StatusSucceeded, CreatedAt: old})
	require.NoError(t, err)
	_, err = store.Record(ctx, ledger.Job{SessionID: "s", Kind: ledger.KindPreview, Status: ledger.StatusSucceeded, CreatedAt: old.Add(48 * time.Hour)})
	require.NoError(t, err)

	removed, err := store.PruneBefore(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	jobs, err := store.ListBySession(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store, err := ledger.Open(ctx, cfg)
	require.NoError(t, err)
	_, err = store.Record(ctx, ledger.Job{SessionID: "s", Kind: ledger.KindFull, Status: ledger.StatusSucceeded})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := openStore(t, cfg)
	jobs, err := reopened.ListBySession(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", cfg.LedgerDSN())
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = ledger.Open(context.Background(), cfg)
	assert.True(t, errors.Is(err, ledger.ErrSchemaMismatch), "got %v", err)
}

func TestInMemoryDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ledger.Path = ""
	store := openStore(t, cfg)
	_, err := store.Record(context.Background(), ledger.Job{SessionID: "m", Kind: ledger.KindPreview, Status: ledger.StatusSucceeded})
	require.NoError(t, err)
	jobs, err := store.ListBySession(context.Background(), "m", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
