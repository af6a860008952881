package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carewell/recordstore/db"
)

// scratchFormatVersion stamps every scratch entry so a future layout
// change can migrate old values.
const scratchFormatVersion = 1

// scratchEntry is the stored wrapper around a scratch value.
type scratchEntry struct {
	Value         any       `json:"value"`
	Timestamp     time.Time `json:"timestamp"`
	FormatVersion int       `json:"formatVersion"`
}

// SetValue stores a small setting or session pointer (current-user id,
// last-sync timestamp, feature flags) in the flat scratch space. Values
// must be JSON-serializable; there is no querying or indexing here.
func (s *DocumentStore) SetValue(ctx context.Context, key string, value any) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: scratch key must not be empty", ErrValidation)
	}

	raw, err := json.Marshal(scratchEntry{
		Value:         value,
		Timestamp:     s.clock(),
		FormatVersion: scratchFormatVersion,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal scratch %q: %v", ErrValidation, key, err)
	}

	if err := s.engine.Put(db.CFScratch, []byte(key), raw); err != nil {
		return storageErr("set value", err)
	}
	return nil
}

// GetValue returns the stored value for key, or [ErrNotFound].
func (s *DocumentStore) GetValue(ctx context.Context, key string) (any, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	raw, err := s.engine.Get(db.CFScratch, []byte(key))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: scratch key %q", ErrNotFound, key)
		}
		return nil, storageErr("get value", err)
	}

	var entry scratchEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: unmarshal scratch %q: %v", ErrValidation, key, err)
	}
	return entry.Value, nil
}

// DeleteValue removes a scratch key. Unknown keys are a no-op.
func (s *DocumentStore) DeleteValue(ctx context.Context, key string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.engine.Delete(db.CFScratch, []byte(key)); err != nil {
		return storageErr("delete value", err)
	}
	return nil
}

// ScratchKeys lists every key in the scratch space, sorted.
func (s *DocumentStore) ScratchKeys(ctx context.Context) ([]string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	it, err := s.engine.NewIterator(db.CFScratch)
	if err != nil {
		return nil, storageErr("scratch keys", err)
	}
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		return nil, storageErr("scratch keys", err)
	}
	return keys, nil
}

// scratchAll dumps the raw scratch entries for snapshot export.
func (s *DocumentStore) scratchAll(ctx context.Context) (map[string]json.RawMessage, error) {
	it, err := s.engine.NewIterator(db.CFScratch)
	if err != nil {
		return nil, storageErr("export scratch", err)
	}
	defer it.Close()

	out := make(map[string]json.RawMessage)
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[string(it.Key())] = json.RawMessage(it.Value())
	}
	if err := it.Err(); err != nil {
		return nil, storageErr("export scratch", err)
	}
	return out, nil
}
