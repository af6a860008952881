package docstore

import (
	"context"
	"fmt"
)

// UpsertDailyRecord enforces "one daily record per (user, date)": if a
// record for the candidate's (userId, recordDate) exists it is updated,
// otherwise a new one is inserted. Last write wins.
func (s *DocumentStore) UpsertDailyRecord(ctx context.Context, fields map[string]any) (*Document, error) {
	return s.upsertDaily(ctx, TypeDailyRecord, fields)
}

// UpsertAttendance applies the same one-per-(user, date) rule to
// attendance entries, keyed by attendanceDate.
func (s *DocumentStore) UpsertAttendance(ctx context.Context, fields map[string]any) (*Document, error) {
	return s.upsertDaily(ctx, TypeAttendance, fields)
}

// upsertDaily probes for an existing (type, userId, date) document and
// decides insert vs. update. The check-then-act sequence is serialized by
// the store's write mutex, so two goroutines on the same store cannot
// create duplicates; two independent store instances over the same data
// (e.g. separate processes) can still race, which resolves as
// last-write-wins — accepted for the single-operator client scenario.
func (s *DocumentStore) upsertDaily(ctx context.Context, typ Type, fields map[string]any) (*Document, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	dateField := DateField(typ)
	userID, uok := stringField(fields, "userId")
	date, dok := stringField(fields, dateField)
	if !uok || userID == "" {
		return nil, fmt.Errorf("%w: upsert of %q requires userId", ErrValidation, typ)
	}
	if !dok || date == "" {
		return nil, fmt.Errorf("%w: upsert of %q requires %s", ErrValidation, typ, dateField)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := stringField(fields, "organizationId"); !ok {
		if org := s.lookupUserOrg(ctx, userID); org != "" {
			fields = cloneFields(fields)
			fields["organizationId"] = org
		}
	}

	existing, err := s.findDaily(ctx, typ, userID, dateField, date)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		merged, err := existing.mergeFields(fields)
		if err != nil {
			return nil, err
		}
		return s.putLocked(merged, ChangeUpdate)
	}

	return s.putLocked(&Document{Type: typ, Fields: cloneFields(fields)}, ChangePut)
}

// findDaily probes for the unique (type, userId, date) document.
func (s *DocumentStore) findDaily(ctx context.Context, typ Type, userID, dateField, date string) (*Document, error) {
	docs, err := s.Query(ctx, Selector{
		"type":    typ,
		"userId":  userID,
		dateField: date,
	}, WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// lookupUserOrg resolves the organization of a user document, or "" when
// the user is unknown — the candidate is then stored without an
// organization, matching how dangling references are tolerated elsewhere.
func (s *DocumentStore) lookupUserOrg(ctx context.Context, userID string) string {
	users, err := s.Query(ctx, Selector{
		"type":   TypeUser,
		"userId": userID,
	}, WithLimit(1))
	if err != nil || len(users) == 0 {
		return ""
	}
	org, _ := users[0].fieldString("organizationId")
	return org
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
