package docstore

import (
	"context"
	"fmt"
)

// PruneOlderThan deletes documents of the given type whose date field is
// strictly before cutoff (YYYY-MM-DD) and returns how many were removed.
// Other types are never touched, and related documents are never
// cascaded — a reader following a foreign key into pruned data gets a
// plain not-found, which callers must tolerate.
//
// Per-document delete failures are logged and skipped; the returned
// count covers only successful deletions.
func (s *DocumentStore) PruneOlderThan(ctx context.Context, typ Type, cutoff string) (int, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}

	dateField := DateField(typ)
	if dateField == "" {
		return 0, fmt.Errorf("%w: type %q has no date field to prune by", ErrValidation, typ)
	}
	if cutoff == "" {
		return 0, fmt.Errorf("%w: prune cutoff must not be empty", ErrValidation)
	}

	// The range upper bound is inclusive, the prune contract exclusive:
	// query up to the cutoff, then skip exact matches.
	docs, err := s.Query(ctx, Selector{
		"type":    typ,
		dateField: Range{LTE: cutoff},
	})
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deleted := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		date, ok := doc.fieldString(dateField)
		if !ok || date >= cutoff {
			continue
		}
		existed, err := s.deleteLocked(doc.ID)
		if err != nil {
			s.log.Warn("failed to prune document",
				"document_id", doc.ID, "type", string(typ), "error", err)
			continue
		}
		if existed {
			deleted++
		}
	}

	s.metrics.addPruned(deleted)
	s.log.Info("retention prune finished",
		"type", string(typ), "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}
