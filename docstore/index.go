package docstore

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/carewell/recordstore/db"
	"github.com/carewell/recordstore/pkg/logger"
)

// indexDef is a composite index over payload fields. The field list is a
// key prefix: equality values for a leading prefix of fields, optionally
// followed by a range scan on the next field.
type indexDef struct {
	name   string
	fields []string
}

// indexSet is the fixed set of indexes materialized at initialization.
// It covers the application's query shapes: by type, by type+org, by
// type+user, and the per-user and per-type date ranges.
var indexSet = []indexDef{
	{name: "t", fields: []string{"type"}},
	{name: "t_org", fields: []string{"type", "organizationId"}},
	{name: "t_user", fields: []string{"type", "userId"}},
	{name: "t_user_rdate", fields: []string{"type", "userId", "recordDate"}},
	{name: "t_rdate", fields: []string{"type", "recordDate"}},
	{name: "t_adate", fields: []string{"type", "attendanceDate"}},
}

// indexSep separates segments inside an index key. 0x00 sorts before any
// value byte, the same trick the db layer uses for column families.
const indexSep = 0x00

// indexManager owns the materialized indexes in the index column family
// and the query planning over them. When disabled (or on any index
// error), queries fall back to a full scan of the type's documents —
// slower, never different results.
type indexManager struct {
	engine   db.Store
	log      logger.Logger
	disabled atomic.Bool
}

func newIndexManager(engine db.Store, log logger.Logger) *indexManager {
	return &indexManager{engine: engine, log: log.With("component", "index")}
}

// ---------------------------------------------------------------------------
// Key encoding
// ---------------------------------------------------------------------------

// indexKey builds: name 0x00 v1 0x00 v2 0x00 ... vk 0x00 docID.
// The document id terminates the key so entries are unique per document;
// the id is duplicated in the value for cheap extraction.
func indexKey(def indexDef, values []string, docID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(def.name)
	buf.WriteByte(indexSep)
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte(indexSep)
	}
	buf.WriteString(docID)
	return buf.Bytes()
}

// indexPrefix builds the scan prefix for the leading k values of def.
func indexPrefix(def indexDef, values []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(def.name)
	buf.WriteByte(indexSep)
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte(indexSep)
	}
	return buf.Bytes()
}

// indexEntries returns every index key that doc participates in. A doc
// participates in an index only if all indexed fields resolve to strings;
// a missing field simply means no entry (such a doc could never match an
// equality on that field anyway).
func indexEntries(doc *Document) [][]byte {
	var keys [][]byte
	for _, def := range indexSet {
		values := make([]string, 0, len(def.fields))
		complete := true
		for _, f := range def.fields {
			var v string
			var ok bool
			if f == "type" {
				v, ok = string(doc.Type), true
			} else {
				v, ok = doc.fieldString(f)
			}
			if !ok {
				complete = false
				break
			}
			values = append(values, v)
		}
		if complete {
			keys = append(keys, indexKey(def, values, doc.ID))
		}
	}
	return keys
}

// ---------------------------------------------------------------------------
// Materialization
// ---------------------------------------------------------------------------

// rebuild scans every stored document and (re)writes its index entries.
// Idempotent: an entry that already exists is overwritten with identical
// bytes, so concurrent or repeated materialization converges.
func (m *indexManager) rebuild(ctx context.Context) error {
	it, err := m.engine.NewIterator(db.CFDocuments)
	if err != nil {
		return storageErr("index rebuild", err)
	}
	defer it.Close()

	batch := m.engine.NewBatch()
	defer batch.Close()

	const flushEvery = 512
	count := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var doc Document
		if err := doc.UnmarshalJSON(it.Value()); err != nil {
			m.log.Warn("skipping unreadable document during index rebuild",
				"key", string(it.Key()), "error", err)
			continue
		}
		for _, key := range indexEntries(&doc) {
			if err := batch.Put(db.CFIndex, key, []byte(doc.ID)); err != nil {
				return storageErr("index rebuild", err)
			}
		}
		count++
		if batch.Count() >= flushEvery {
			if err := batch.Commit(); err != nil {
				return storageErr("index rebuild", err)
			}
			batch.Close()
			batch = m.engine.NewBatch()
		}
	}
	if err := it.Err(); err != nil {
		return storageErr("index rebuild", err)
	}
	if batch.Count() > 0 {
		if err := batch.Commit(); err != nil {
			return storageErr("index rebuild", err)
		}
	}

	m.log.Info("indexes materialized", "indexes", len(indexSet), "documents", count)
	return nil
}

// ---------------------------------------------------------------------------
// Query planning
// ---------------------------------------------------------------------------

// plan is a chosen index scan: equality values for the leading prefix,
// plus an optional trailing range.
type plan struct {
	def      indexDef
	eqValues []string
	useRange bool
	rng      Range
}

// planFor selects the narrowest declared index for the selector: the one
// covering the most selector fields as an exact field prefix (equality
// fields, then optionally the range field). Returns nil when no index
// leads with a covered field — the caller falls back to a full scan.
func planFor(n *normalizedSelector) *plan {
	var best *plan
	bestCovered, bestWidth := 0, 0

	for _, def := range indexSet {
		k := 0
		for k < len(def.fields) {
			if _, ok := n.eq[def.fields[k]]; !ok {
				break
			}
			k++
		}
		if k == 0 {
			continue
		}

		covered := k
		useRange := false
		if n.rangeField != "" && k < len(def.fields) && def.fields[k] == n.rangeField {
			useRange = true
			covered++
		}

		if covered > bestCovered || (covered == bestCovered && (best == nil || len(def.fields) < bestWidth)) {
			values := make([]string, k)
			for i := 0; i < k; i++ {
				values[i] = n.eq[def.fields[i]]
			}
			best = &plan{def: def, eqValues: values, useRange: useRange, rng: n.rng}
			bestCovered, bestWidth = covered, len(def.fields)
		}
	}
	return best
}

// scan executes a plan and returns matching document ids in key order.
func (m *indexManager) scan(ctx context.Context, p *plan) ([]string, error) {
	it, err := m.engine.NewIterator(db.CFIndex)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefix := indexPrefix(p.def, p.eqValues)
	start := prefix
	if p.useRange && p.rng.GTE != "" {
		start = append(append([]byte{}, prefix...), []byte(p.rng.GTE)...)
	}

	var ids []string
	for it.Seek(start); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := it.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		if p.useRange && p.rng.LTE != "" {
			rest := key[len(prefix):]
			if i := bytes.IndexByte(rest, indexSep); i >= 0 {
				if string(rest[:i]) > p.rng.LTE {
					break
				}
			}
		}
		ids = append(ids, string(it.Value()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Disable forces every query through the full-scan fallback. Used by
// tests to prove scan equivalence, and available as an escape hatch when
// an index is suspected of being corrupt.
func (m *indexManager) Disable() { m.disabled.Store(true) }

// Enable restores index-assisted queries.
func (m *indexManager) Enable() { m.disabled.Store(false) }
