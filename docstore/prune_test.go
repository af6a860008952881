package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneOlderThan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for day := 1; day <= 6; day++ {
		date := fmt.Sprintf("2024-04-%02d", day)
		mustPut(t, store, TypeDailyRecord,
			map[string]any{"userId": "u1", "recordDate": date})
	}
	// Attendance on an old date must survive a daily_record prune.
	att := mustPut(t, store, TypeAttendance,
		map[string]any{"userId": "u1", "attendanceDate": "2024-04-01"})

	deleted, err := store.PruneOlderThan(ctx, TypeDailyRecord, "2024-04-04")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := store.QueryByType(ctx, TypeDailyRecord, WithSort("recordDate", false))
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	for _, doc := range remaining {
		date, _ := doc.fieldString("recordDate")
		assert.GreaterOrEqual(t, date, "2024-04-04", "cutoff date itself is kept")
	}

	_, err = store.Get(ctx, att.ID)
	assert.NoError(t, err, "other types are never touched")
}

func TestPruneIsRepeatable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	mustPut(t, store, TypeDailyRecord,
		map[string]any{"userId": "u1", "recordDate": "2024-01-01"})

	deleted, err := store.PruneOlderThan(ctx, TypeDailyRecord, "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = store.PruneOlderThan(ctx, TypeDailyRecord, "2024-02-01")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPruneLeavesDanglingReferencesReadable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := mustPut(t, store, TypeDailyRecord,
		map[string]any{"userId": "u1", "recordDate": "2024-01-01"})

	_, err := store.PruneOlderThan(ctx, TypeDailyRecord, "2024-02-01")
	require.NoError(t, err)

	// A reader following the stale reference gets a plain not-found.
	_, err = store.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.PruneOlderThan(ctx, TypeOrganization, "2024-01-01")
	assert.ErrorIs(t, err, ErrValidation, "organizations have no date field")

	_, err = store.PruneOlderThan(ctx, TypeDailyRecord, "")
	assert.ErrorIs(t, err, ErrValidation)
}
