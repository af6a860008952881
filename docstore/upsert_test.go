package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertDailyRecordScenario(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	mustPut(t, store, TypeOrganization,
		map[string]any{"organizationId": "ORG1", "name": "Facility A"})
	mustPut(t, store, TypeUser,
		map[string]any{"userId": "u1", "organizationId": "ORG1", "role": "user"})

	first, err := store.UpsertDailyRecord(ctx, map[string]any{
		"userId": "u1", "recordDate": "2024-05-01", "temperature": 36.5,
	})
	require.NoError(t, err)

	second, err := store.UpsertDailyRecord(ctx, map[string]any{
		"userId": "u1", "recordDate": "2024-05-01", "temperature": 37.0,
	})
	require.NoError(t, err)

	// Same document, updated in place.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 37.0, second.Fields["temperature"])

	// Organization resolved from the user document.
	assert.Equal(t, "ORG1", second.Fields["organizationId"])

	docs, err := store.Query(ctx, Selector{
		"type": TypeDailyRecord, "userId": "u1", "recordDate": "2024-05-01",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1, "exactly one record per (user, date)")
	assert.Equal(t, 37.0, docs[0].Fields["temperature"])
}

func TestUpsertDifferentDates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, date := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		_, err := store.UpsertDailyRecord(ctx, map[string]any{
			"userId": "u1", "recordDate": date,
		})
		require.NoError(t, err)
	}

	docs, err := store.Query(ctx, Selector{"type": TypeDailyRecord, "userId": "u1"})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestUpsertAttendance(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertAttendance(ctx, map[string]any{
		"userId": "u1", "organizationId": "ORG1",
		"attendanceDate": "2024-05-01", "arrivalTime": "09:00",
	})
	require.NoError(t, err)

	second, err := store.UpsertAttendance(ctx, map[string]any{
		"userId": "u1", "organizationId": "ORG1",
		"attendanceDate": "2024-05-01", "departureTime": "16:00",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "09:00", second.Fields["arrivalTime"], "earlier fields survive the merge")
	assert.Equal(t, "16:00", second.Fields["departureTime"])
}

func TestUpsertSeparatesUsers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, err := store.UpsertDailyRecord(ctx, map[string]any{
		"userId": "u1", "recordDate": "2024-05-01",
	})
	require.NoError(t, err)

	b, err := store.UpsertDailyRecord(ctx, map[string]any{
		"userId": "u2", "recordDate": "2024-05-01",
	})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestUpsertRequiresKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertDailyRecord(ctx, map[string]any{"recordDate": "2024-05-01"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.UpsertDailyRecord(ctx, map[string]any{"userId": "u1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.UpsertAttendance(ctx, map[string]any{"userId": "u1"})
	assert.ErrorIs(t, err, ErrValidation)
}
