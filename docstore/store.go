// Package docstore implements the offline-first document store at the
// core of the record-keeping application: durable typed documents over an
// embedded [db.Store], composite indexes with a full-scan fallback,
// one-per-(user,date) upserts for diary entities, a change feed, snapshot
// export/import, retention pruning, and a flat key/value scratch space.
//
// A DocumentStore does not own its engine: open the engine, inject it via
// [Open], and close both when done (store first, then engine).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carewell/recordstore/db"
	"github.com/carewell/recordstore/pkg/logger"
)

// DocumentStore is the persistent collection of typed documents.
// All methods are safe for concurrent use. Writes are serialized by an
// internal mutex so the read-compare-write sequence behind revision
// checks and upserts is atomic within one store instance.
type DocumentStore struct {
	engine   db.Store
	log      logger.Logger
	metrics  *Metrics
	notifier *notifier
	indexes  *indexManager

	clock func() time.Time
	newID func() string

	// writeMu serializes all mutating operations.
	writeMu sync.Mutex

	// initMu guards the memoized initialization future. Every caller of
	// Initialize awaits the same in-flight run; there is never a second
	// index materialization racing the first.
	initMu     sync.Mutex
	initFuture chan struct{}
	initErr    error

	closed atomic.Bool
}

// storeConfig collects Open options.
type storeConfig struct {
	logger    logger.Logger
	metrics   *Metrics
	queueSize int
	clock     func() time.Time
	newID     func() string
}

// Option is a functional option for [Open].
type Option func(*storeConfig)

// WithLogger sets the store's logger. Defaults to logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(c *storeConfig) { c.logger = l }
}

// WithMetrics attaches operation counters.
func WithMetrics(m *Metrics) Option {
	return func(c *storeConfig) { c.metrics = m }
}

// WithQueueSize sets the change-feed queue capacity.
func WithQueueSize(n int) Option {
	return func(c *storeConfig) { c.queueSize = n }
}

// WithClock overrides the time source. Test hook.
func WithClock(fn func() time.Time) Option {
	return func(c *storeConfig) { c.clock = fn }
}

// WithIDGenerator overrides document id generation. Test hook.
func WithIDGenerator(fn func() string) Option {
	return func(c *storeConfig) { c.newID = fn }
}

// Open wraps an engine in a DocumentStore. The engine must have been
// opened with [db.RecordColumnFamilies]. Open does not touch storage;
// call [DocumentStore.Initialize] (or any operation, which does so
// lazily) to materialize indexes.
func Open(engine db.Store, opts ...Option) (*DocumentStore, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrValidation)
	}

	cfg := &storeConfig{}
	for _, o := range opts {
		o(cfg)
	}

	root := cfg.logger
	if root == nil {
		root = logger.Default()
	}
	log := root.With("component", "docstore")

	clock := cfg.clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.newID
	if newID == nil {
		newID = uuid.NewString
	}

	return &DocumentStore{
		engine:   engine,
		log:      log,
		metrics:  cfg.metrics,
		notifier: newNotifier(root, cfg.queueSize),
		indexes:  newIndexManager(engine, root),
		clock:    clock,
		newID:    newID,
	}, nil
}

// Initialize materializes the index set. It is memoized: concurrent and
// repeated callers all await the single in-flight run and share its
// result. An initialization failure is terminal for the store — the
// application must not proceed past its loading state.
func (s *DocumentStore) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.initMu.Lock()
	fut := s.initFuture
	if fut == nil {
		fut = make(chan struct{})
		s.initFuture = fut
		go func() {
			err := s.indexes.rebuild(context.Background())
			s.initMu.Lock()
			s.initErr = err
			s.initMu.Unlock()
			close(fut)
		}()
	}
	s.initMu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fut:
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initErr
}

// ensureReady gates every operation on successful initialization.
func (s *DocumentStore) ensureReady(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.Initialize(ctx)
}

// Close stops the change-feed dispatcher after draining queued events.
// The engine is left open for its owner to close.
func (s *DocumentStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	s.notifier.close()
	s.log.Info("document store closed")
	return nil
}

// DisableIndexes forces all queries through the full-scan fallback.
func (s *DocumentStore) DisableIndexes() { s.indexes.Disable() }

// EnableIndexes restores index-assisted queries.
func (s *DocumentStore) EnableIndexes() { s.indexes.Enable() }

// ---------------------------------------------------------------------------
// Point operations
// ---------------------------------------------------------------------------

// Put stores doc, assigning an id if absent, preserving CreatedAt across
// overwrites, stamping UpdatedAt, and returning the stored document with
// its new revision. Supplying a non-empty Revision that does not match
// the stored one fails with a [RevisionConflictError]; supplying no
// revision overwrites unconditionally (the import path relies on this).
func (s *DocumentStore) Put(ctx context.Context, doc *Document) (*Document, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.putLocked(doc, ChangePut)
}

func (s *DocumentStore) putLocked(doc *Document, change ChangeType) (*Document, error) {
	d := doc.Clone()
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = s.newID()
	}

	current, err := s.getRaw(d.ID)
	if err != nil {
		return nil, err
	}

	if current != nil {
		if d.Revision != "" && d.Revision != current.Revision {
			return nil, &RevisionConflictError{
				DocumentID: d.ID,
				Supplied:   d.Revision,
				Stored:     current.Revision,
			}
		}
		if d.Type != current.Type {
			return nil, fmt.Errorf("%w: type of %s cannot change (%q -> %q)",
				ErrValidation, d.ID, current.Type, d.Type)
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = current.CreatedAt
		}
	}

	now := s.clock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Revision = s.nextRevision(current)

	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrValidation, d.ID, err)
	}

	batch := s.engine.NewBatch()
	defer batch.Close()

	// Old index entries first, then the document and its new entries.
	// The batch applies in order, so entries shared between old and new
	// end up present.
	if current != nil {
		for _, key := range indexEntries(current) {
			if err := batch.Delete(db.CFIndex, key); err != nil {
				return nil, storageErr("put", err)
			}
		}
	}
	if err := batch.Put(db.CFDocuments, []byte(d.ID), raw); err != nil {
		return nil, storageErr("put", err)
	}
	for _, key := range indexEntries(d) {
		if err := batch.Put(db.CFIndex, key, []byte(d.ID)); err != nil {
			return nil, storageErr("put", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return nil, storageErr("put", err)
	}

	s.metrics.incPuts()
	s.emit(ChangeEvent{DocumentID: d.ID, Change: change, Document: d.Clone()})
	return d, nil
}

// Get returns the document with the given id, or [ErrNotFound].
func (s *DocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.metrics.incGets()
	doc, err := s.getRaw(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

// getRaw reads a document without the not-found error: (nil, nil) means
// the id does not exist.
func (s *DocumentStore) getRaw(id string) (*Document, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := s.engine.Get(db.CFDocuments, []byte(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, storageErr("get", err)
	}
	var doc Document
	if err := doc.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %v", ErrValidation, id, err)
	}
	return &doc, nil
}

// Update merges the whitelisted fields into the stored document and
// writes it back under the freshly read revision, so a concurrent
// overwrite between read and write surfaces as [ErrConflict] instead of
// a lost update. ID, Type and CreatedAt are never overwritten.
func (s *DocumentStore) Update(ctx context.Context, id string, fields map[string]any) (*Document, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.getRaw(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	merged, err := current.mergeFields(fields)
	if err != nil {
		return nil, err
	}
	return s.putLocked(merged, ChangeUpdate)
}

// Delete removes the document and reports whether it existed. Deleting a
// missing id is not an error.
func (s *DocumentStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.ensureReady(ctx); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.deleteLocked(id)
}

func (s *DocumentStore) deleteLocked(id string) (bool, error) {
	current, err := s.getRaw(id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	batch := s.engine.NewBatch()
	defer batch.Close()

	if err := batch.Delete(db.CFDocuments, []byte(id)); err != nil {
		return false, storageErr("delete", err)
	}
	for _, key := range indexEntries(current) {
		if err := batch.Delete(db.CFIndex, key); err != nil {
			return false, storageErr("delete", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return false, storageErr("delete", err)
	}

	s.metrics.incDeletes()
	s.emit(ChangeEvent{DocumentID: id, Change: ChangeDelete})
	return true, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Query evaluates a declarative selector and returns the full, eagerly
// materialized result. Index-assisted when a declared index covers the
// selector; otherwise (or on any index error) a full scan of the type's
// documents — identical results, only slower.
func (s *DocumentStore) Query(ctx context.Context, sel Selector, opts ...QueryOption) ([]*Document, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	n, err := sel.normalize()
	if err != nil {
		return nil, err
	}

	var qo queryOptions
	for _, o := range opts {
		o(&qo)
	}
	s.metrics.incQueries()

	if !s.indexes.disabled.Load() {
		if p := planFor(n); p != nil {
			docs, err := s.queryViaIndex(ctx, n, p)
			if err == nil {
				return finalize(docs, &qo), nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.log.Warn("index scan failed, falling back to full scan",
				"index", p.def.name, "error", err)
		}
	}

	s.metrics.incFallbackScans()
	s.log.Debug("query answered by full scan", "type", string(n.typ))
	docs, err := s.fullScan(ctx, n)
	if err != nil {
		return nil, err
	}
	return finalize(docs, &qo), nil
}

func (s *DocumentStore) queryViaIndex(ctx context.Context, n *normalizedSelector, p *plan) ([]*Document, error) {
	ids, err := s.indexes.scan(ctx, p)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.getRaw(id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			// Dangling index entry (e.g. crash between commits of a
			// rebuild). Tolerated: the entry just points at nothing.
			continue
		}
		// Post-filter with the full selector: covers selector fields the
		// index does not, and shields results from stale entries.
		if n.matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// fullScan walks every stored document and filters in memory.
func (s *DocumentStore) fullScan(ctx context.Context, n *normalizedSelector) ([]*Document, error) {
	it, err := s.engine.NewIterator(db.CFDocuments)
	if err != nil {
		return nil, storageErr("scan", err)
	}
	defer it.Close()

	var docs []*Document
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var doc Document
		if err := doc.UnmarshalJSON(it.Value()); err != nil {
			s.log.Warn("skipping unreadable document during scan",
				"key", string(it.Key()), "error", err)
			continue
		}
		if n.matches(&doc) {
			docs = append(docs, &doc)
		}
	}
	if err := it.Err(); err != nil {
		return nil, storageErr("scan", err)
	}
	return docs, nil
}

func finalize(docs []*Document, qo *queryOptions) []*Document {
	sortDocs(docs, qo.sort)
	if qo.limit > 0 && len(docs) > qo.limit {
		docs = docs[:qo.limit]
	}
	return docs
}

// QueryByType returns all documents of the given type.
func (s *DocumentStore) QueryByType(ctx context.Context, typ Type, opts ...QueryOption) ([]*Document, error) {
	return s.Query(ctx, Selector{"type": typ}, opts...)
}

// QueryByOrgAndType returns all documents of a type belonging to an
// organization.
func (s *DocumentStore) QueryByOrgAndType(ctx context.Context, typ Type, organizationID string, opts ...QueryOption) ([]*Document, error) {
	return s.Query(ctx, Selector{"type": typ, "organizationId": organizationID}, opts...)
}

// QueryByUserAndDateRange returns a user's documents whose date field
// falls in the inclusive [start, end] range, newest first. The type must
// carry a date field (daily records, attendance).
func (s *DocumentStore) QueryByUserAndDateRange(ctx context.Context, typ Type, userID, start, end string) ([]*Document, error) {
	dateField := DateField(typ)
	if dateField == "" {
		return nil, fmt.Errorf("%w: type %q has no date field", ErrValidation, typ)
	}
	sel := Selector{
		"type":    typ,
		"userId":  userID,
		dateField: Range{GTE: start, LTE: end},
	}
	return s.Query(ctx, sel, WithSort(dateField, true))
}

// ---------------------------------------------------------------------------
// Change feed
// ---------------------------------------------------------------------------

// OnChange registers a listener for committed writes. Delivery is
// asynchronous and FIFO in commit order; a write that has returned does
// not guarantee its listeners have run yet.
func (s *DocumentStore) OnChange(fn Listener) ListenerToken {
	return s.notifier.subscribe(fn)
}

// OffChange removes a previously registered listener.
func (s *DocumentStore) OffChange(token ListenerToken) {
	s.notifier.unsubscribe(token)
}

// Subscribe returns a broadcast channel of change events for reactive
// consumers. Events are dropped (and logged) when the subscriber falls
// more than buffer events behind — the feed never blocks delivery to
// other listeners on a slow channel reader.
func (s *DocumentStore) Subscribe(buffer int) (<-chan ChangeEvent, ListenerToken) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan ChangeEvent, buffer)
	token := s.notifier.subscribe(func(ev ChangeEvent) {
		select {
		case ch <- ev:
		default:
			s.log.Warn("dropping change event for slow subscriber",
				"document_id", ev.DocumentID)
		}
	})
	return ch, token
}

func (s *DocumentStore) emit(ev ChangeEvent) {
	s.metrics.incChangeEvents()
	s.notifier.enqueue(ev)
}

// ---------------------------------------------------------------------------
// Revisions
// ---------------------------------------------------------------------------

// nextRevision produces "<seq>-<nonce>", seq incrementing from the stored
// revision. The nonce makes tokens from different installations distinct
// even at equal sequence numbers.
func (s *DocumentStore) nextRevision(current *Document) string {
	seq := 0
	if current != nil {
		seq = revisionSeq(current.Revision)
	}
	nonce := strings.ReplaceAll(s.newID(), "-", "")
	if len(nonce) > 8 {
		nonce = nonce[:8]
	}
	return fmt.Sprintf("%d-%s", seq+1, nonce)
}

func revisionSeq(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}
