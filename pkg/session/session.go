// Package session implements the unit of work of the IO layer: a
// transactional scope owning an identity map, per-record snapshots,
// and the pending insert and delete registrations that Commit turns
// into dependency-ordered driver statements.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zentity-io/zentity/internal/identity"
	"github.com/zentity-io/zentity/internal/track"
	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

// Session is one unit-of-work scope over a driver. It owns its
// identity map and change tracker; records loaded or registered here
// belong to this session until Commit detaches deletions or Close
// detaches everything.
//
// A Session is confined to one execution context at a time. The
// internal mutex guards against accidental cross-goroutine calls but
// concurrent mutation of one session is not a supported pattern;
// independent sessions over the same driver run in parallel freely.
type Session struct {
	mu      sync.Mutex
	drv     driver.Driver
	schema  *entity.Schema
	ids     *identity.Map
	tracker *track.Tracker

	inserts []*entity.Record
	deletes []*entity.Record
	relOps  []relOp
	closed  bool
}

// relOp is one pending to-many collection mutation, recorded by
// Collection.Add or Collection.Remove and consumed at commit.
type relOp struct {
	owner  *entity.Record
	rel    *entity.Relationship
	target *entity.Record
	add    bool
}

// New creates a session over the given driver and frozen schema.
func New(drv driver.Driver, schema *entity.Schema) (*Session, error) {
	if schema == nil || !schema.Frozen() {
		return nil, entity.ErrSchemaNotFrozen
	}
	return &Session{
		drv:     drv,
		schema:  schema,
		ids:     identity.New(),
		tracker: track.New(),
	}, nil
}

// RegisterNew schedules a Transient record for insertion and marks it
// Managed. A record whose single string primary key is unset gets a
// generated UUID v7 key; integer keys stay unset until the backend
// assigns one at commit.
func (s *Session) RegisterNew(rec *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerNewLocked(rec)
}

func (s *Session) registerNewLocked(rec *entity.Record) error {
	if s.closed {
		return entity.ErrSessionClosed
	}
	if rec.State() != entity.Transient {
		return fmt.Errorf("register new %s (%s): %w",
			rec.Descriptor().Name, rec.State(), entity.ErrWrongState)
	}
	s.generateKey(rec)
	if _, err := rec.Key(); err == nil {
		if _, err := s.ids.Register(rec); err != nil {
			return err
		}
	}
	// No key yet: the backend assigns one at commit and the record is
	// registered then.
	rec.SetState(entity.Managed)
	s.inserts = append(s.inserts, rec)
	return nil
}

// generateKey assigns a UUID v7 to an unset single string primary key.
func (s *Session) generateKey(rec *entity.Record) {
	keys := rec.Descriptor().KeyFields()
	if len(keys) != 1 || keys[0].Kind != entity.KindString {
		return
	}
	v, _ := rec.Get(keys[0].Name)
	if v == nil || v == "" {
		_ = rec.Set(keys[0].Name, uuid.Must(uuid.NewV7()).String())
	}
}

// RegisterDeleted schedules a Managed record for deletion. The record
// stays tracked until commit, when it transitions to Detached.
// Deleting a record whose insert is still pending cancels the insert
// instead; nothing reaches storage.
func (s *Session) RegisterDeleted(rec *entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerDeletedLocked(rec)
}

func (s *Session) registerDeletedLocked(rec *entity.Record) error {
	if s.closed {
		return entity.ErrSessionClosed
	}
	switch rec.State() {
	case entity.Deleted:
		return nil
	case entity.Managed:
	default:
		return fmt.Errorf("register deleted %s (%s): %w",
			rec.Descriptor().Name, rec.State(), entity.ErrNotManaged)
	}
	for i, pending := range s.inserts {
		if pending == rec {
			s.inserts = append(s.inserts[:i], s.inserts[i+1:]...)
			if key, err := rec.Key(); err == nil {
				s.ids.Forget(key)
			}
			rec.SetState(entity.Transient)
			return nil
		}
	}
	rec.SetState(entity.Deleted)
	s.deletes = append(s.deletes, rec)
	return nil
}

// SaveAll registers every Transient record in the collection for
// insertion. Records already managed are left alone.
func (s *Session) SaveAll(recs []*entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if rec.State() != entity.Transient {
			continue
		}
		if err := s.registerNewLocked(rec); err != nil {
			return err
		}
	}
	return nil
}

// IsDirty reports whether the record differs from its snapshot.
func (s *Session) IsDirty(rec *entity.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.IsDirty(rec)
}

// Changes returns the record's changed fields against its snapshot,
// in descriptor field order.
func (s *Session) Changes(rec *entity.Record) []entity.FieldDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Diff(rec)
}

// Rollback discards all pending operations without touching storage.
// Managed records revert to their snapshots, pending inserts return to
// Transient, and pending deletes return to Managed. The session stays
// usable.
func (s *Session) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, rec := range s.inserts {
		if key, err := rec.Key(); err == nil {
			s.ids.Forget(key)
		}
		rec.SetState(entity.Transient)
	}
	s.inserts = nil
	for _, rec := range s.deletes {
		rec.SetState(entity.Managed)
	}
	s.deletes = nil
	s.relOps = nil
	for _, rec := range s.ids.Records() {
		s.tracker.Revert(rec)
	}
}

// Close ends the unit-of-work scope: every owned record transitions to
// Detached and all pending operations are dropped. Operations on a
// closed session fail with ErrSessionClosed. Close does not close the
// underlying driver.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, rec := range s.ids.Records() {
		rec.SetState(entity.Detached)
		s.ids.Forget(mustKey(rec))
		s.tracker.Forget(rec)
	}
	for _, rec := range s.inserts {
		rec.SetState(entity.Detached)
	}
	s.inserts = nil
	s.deletes = nil
	s.relOps = nil
	s.closed = true
}

// mustKey returns the record's key; only called for records that were
// registered, which implies a valid key.
func mustKey(rec *entity.Record) entity.Key {
	key, err := rec.Key()
	if err != nil {
		panic(fmt.Sprintf("registered record without key: %v", err))
	}
	return key
}
