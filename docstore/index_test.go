package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRecords populates two users in two organizations with daily records
// across May 2024, plus attendance and an assessment.
func seedRecords(t *testing.T, store *DocumentStore) {
	t.Helper()

	mustPut(t, store, TypeOrganization,
		map[string]any{"organizationId": "ORG1", "name": "Facility A"})
	mustPut(t, store, TypeOrganization,
		map[string]any{"organizationId": "ORG2", "name": "Facility B"})
	mustPut(t, store, TypeUser,
		map[string]any{"userId": "u1", "organizationId": "ORG1", "role": "user"})
	mustPut(t, store, TypeUser,
		map[string]any{"userId": "u2", "organizationId": "ORG2", "role": "user"})

	for day := 1; day <= 10; day++ {
		date := fmt.Sprintf("2024-05-%02d", day)
		mustPut(t, store, TypeDailyRecord, map[string]any{
			"userId": "u1", "organizationId": "ORG1",
			"recordDate": date, "moodScore": float64(day),
		})
	}
	mustPut(t, store, TypeDailyRecord, map[string]any{
		"userId": "u2", "organizationId": "ORG2", "recordDate": "2024-05-05",
	})
	mustPut(t, store, TypeAttendance, map[string]any{
		"userId": "u1", "organizationId": "ORG1", "attendanceDate": "2024-05-05",
	})
	mustPut(t, store, TypeAssessment, map[string]any{
		"userId": "u1", "organizationId": "ORG1", "summary": "initial",
	})
}

func TestQueryByType(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)

	docs, err := store.QueryByType(context.Background(), TypeUser)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, TypeUser, d.Type)
	}
}

func TestQueryByOrgAndType(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)

	docs, err := store.QueryByOrgAndType(context.Background(), TypeDailyRecord, "ORG2")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u2", docs[0].Fields["userId"])
}

func TestQueryByUserAndDateRange(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)

	docs, err := store.QueryByUserAndDateRange(context.Background(),
		TypeDailyRecord, "u1", "2024-05-03", "2024-05-07")
	require.NoError(t, err)
	require.Len(t, docs, 5)

	// Inclusive bounds, newest first.
	want := []string{"2024-05-07", "2024-05-06", "2024-05-05", "2024-05-04", "2024-05-03"}
	for i, d := range docs {
		assert.Equal(t, want[i], d.Fields["recordDate"])
		assert.Equal(t, "u1", d.Fields["userId"])
	}
}

func TestQueryRangeOpenEnds(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)
	ctx := context.Background()

	docs, err := store.Query(ctx, Selector{
		"type":       TypeDailyRecord,
		"userId":     "u1",
		"recordDate": Range{GTE: "2024-05-09"},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.Query(ctx, Selector{
		"type":       TypeDailyRecord,
		"userId":     "u1",
		"recordDate": Range{LTE: "2024-05-02"},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryLimit(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)

	docs, err := store.QueryByType(context.Background(), TypeDailyRecord,
		WithSort("recordDate", false), WithLimit(3))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "2024-05-01", docs[0].Fields["recordDate"])
}

func TestSelectorValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("TwoRanges", func(t *testing.T) {
		_, err := store.Query(ctx, Selector{
			"type":       TypeDailyRecord,
			"recordDate": Range{GTE: "2024-01-01"},
			"userId":     Range{GTE: "a"},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("MissingType", func(t *testing.T) {
		_, err := store.Query(ctx, Selector{"userId": "u1"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := store.Query(ctx, Selector{"type": "diary"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestPlanSelection(t *testing.T) {
	cases := []struct {
		name     string
		sel      Selector
		index    string
		useRange bool
	}{
		{
			name:  "TypeOnly",
			sel:   Selector{"type": TypeUser},
			index: "t",
		},
		{
			name:  "TypeAndOrg",
			sel:   Selector{"type": TypeUser, "organizationId": "ORG1"},
			index: "t_org",
		},
		{
			name:  "TypeAndUser",
			sel:   Selector{"type": TypeDailyRecord, "userId": "u1"},
			index: "t_user",
		},
		{
			name:     "UserDateRange",
			sel:      Selector{"type": TypeDailyRecord, "userId": "u1", "recordDate": Range{GTE: "a", LTE: "b"}},
			index:    "t_user_rdate",
			useRange: true,
		},
		{
			name:     "TypeDateRange",
			sel:      Selector{"type": TypeDailyRecord, "recordDate": Range{LTE: "b"}},
			index:    "t_rdate",
			useRange: true,
		},
		{
			name:     "AttendanceDateRange",
			sel:      Selector{"type": TypeAttendance, "attendanceDate": Range{LTE: "b"}},
			index:    "t_adate",
			useRange: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := tc.sel.normalize()
			require.NoError(t, err)
			p := planFor(n)
			require.NotNil(t, p)
			assert.Equal(t, tc.index, p.def.name)
			assert.Equal(t, tc.useRange, p.useRange)
		})
	}
}

// TestFallbackEquivalence proves that breaking the index layer changes
// latency only: every query shape returns the same documents in the same
// order through the full-scan fallback.
func TestFallbackEquivalence(t *testing.T) {
	store, _ := newTestStore(t)
	seedRecords(t, store)
	ctx := context.Background()

	type queryFn func() ([]*Document, error)
	shapes := map[string]queryFn{
		"ByType": func() ([]*Document, error) {
			return store.QueryByType(ctx, TypeDailyRecord, WithSort("recordDate", false))
		},
		"ByOrgAndType": func() ([]*Document, error) {
			return store.QueryByOrgAndType(ctx, TypeDailyRecord, "ORG1", WithSort("recordDate", false))
		},
		"ByUserAndDateRange": func() ([]*Document, error) {
			return store.QueryByUserAndDateRange(ctx, TypeDailyRecord, "u1", "2024-05-02", "2024-05-08")
		},
		"Attendance": func() ([]*Document, error) {
			return store.QueryByUserAndDateRange(ctx, TypeAttendance, "u1", "2024-05-01", "2024-05-31")
		},
	}

	for name, fn := range shapes {
		t.Run(name, func(t *testing.T) {
			indexed, err := fn()
			require.NoError(t, err)

			store.DisableIndexes()
			defer store.EnableIndexes()

			scanned, err := fn()
			require.NoError(t, err)

			require.Len(t, scanned, len(indexed))
			for i := range indexed {
				assert.Equal(t, indexed[i].ID, scanned[i].ID)
				assert.Equal(t, indexed[i].Fields, scanned[i].Fields)
			}
		})
	}
}

// TestIndexMaintenanceOnUpdate ensures stale entries disappear when an
// indexed field changes.
func TestIndexMaintenanceOnUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	doc := mustPut(t, store, TypeDailyRecord, map[string]any{
		"userId": "u1", "recordDate": "2024-05-01",
	})
	_, err := store.Update(ctx, doc.ID, map[string]any{"recordDate": "2024-06-01"})
	require.NoError(t, err)

	old, err := store.QueryByUserAndDateRange(ctx, TypeDailyRecord, "u1", "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := store.QueryByUserAndDateRange(ctx, TypeDailyRecord, "u1", "2024-06-01", "2024-06-30")
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}
