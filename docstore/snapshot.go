package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carewell/recordstore/db"
)

// SnapshotFormatVersion is the current snapshot layout version. Import
// accepts any version up to this one.
const SnapshotFormatVersion = 1

// Snapshot is the portable, order-independent serialization of the whole
// store: every document plus the scratch space. Documents restore in any
// order; revision tokens are meaningless across installations and are
// ignored on import.
type Snapshot struct {
	FormatVersion int                        `json:"formatVersion"`
	ExportedAt    time.Time                  `json:"exportedAt"`
	Documents     []*Document                `json:"documents"`
	KeyValueSpace map[string]json.RawMessage `json:"keyValueSpace,omitempty"`
}

// ImportResult tallies a (possibly partial) import.
type ImportResult struct {
	Imported int `json:"importedCount"`
	Total    int `json:"totalCount"`
}

// ExportSnapshot enumerates every document and scratch entry into a
// snapshot suitable for backup or transfer to another installation.
func (s *DocumentStore) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	it, err := s.engine.NewIterator(db.CFDocuments)
	if err != nil {
		return nil, storageErr("export", err)
	}
	defer it.Close()

	docs := make([]*Document, 0, 64)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc Document
		if err := doc.UnmarshalJSON(it.Value()); err != nil {
			s.log.Warn("skipping unreadable document during export",
				"key", string(it.Key()), "error", err)
			continue
		}
		docs = append(docs, &doc)
	}
	if err := it.Err(); err != nil {
		return nil, storageErr("export", err)
	}

	kv, err := s.scratchAll(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info("snapshot exported", "documents", len(docs), "scratch_keys", len(kv))
	return &Snapshot{
		FormatVersion: SnapshotFormatVersion,
		ExportedAt:    s.clock().UTC(),
		Documents:     docs,
		KeyValueSpace: kv,
	}, nil
}

// DecodeSnapshot parses snapshot JSON produced by [ExportSnapshot] (or a
// compatible installation).
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: malformed snapshot: %v", ErrValidation, err)
	}
	return &snap, nil
}

// ImportSnapshot restores documents from a snapshot. Each document is
// written independently; a document that fails validation or storage is
// logged and counted, never aborts the batch — partial import is an
// accepted terminal state, reported via the returned counts. Scratch
// entries are restored best-effort and do not count toward the result.
func (s *DocumentStore) ImportSnapshot(ctx context.Context, snap *Snapshot) (ImportResult, error) {
	if err := s.ensureReady(ctx); err != nil {
		return ImportResult{}, err
	}

	if snap == nil {
		return ImportResult{}, fmt.Errorf("%w: nil snapshot", ErrValidation)
	}
	if snap.FormatVersion < 1 || snap.FormatVersion > SnapshotFormatVersion {
		return ImportResult{}, fmt.Errorf("%w: unrecognized snapshot format version %d",
			ErrValidation, snap.FormatVersion)
	}
	if snap.Documents == nil {
		return ImportResult{}, fmt.Errorf("%w: snapshot has no document sequence", ErrValidation)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := ImportResult{Total: len(snap.Documents)}
	for _, doc := range snap.Documents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		d := doc.Clone()
		d.Revision = "" // foreign revision tokens are meaningless here
		if _, err := s.putLocked(d, ChangePut); err != nil {
			s.log.Warn("skipping document during import",
				"document_id", doc.ID, "type", string(doc.Type), "error", err)
			continue
		}
		result.Imported++
	}

	for key, raw := range snap.KeyValueSpace {
		if err := s.engine.Put(db.CFScratch, []byte(key), raw); err != nil {
			s.log.Warn("skipping scratch entry during import", "key", key, "error", err)
		}
	}

	s.log.Info("snapshot imported",
		"imported", result.Imported, "total", result.Total,
		"scratch_keys", len(snap.KeyValueSpace))
	return result, nil
}
