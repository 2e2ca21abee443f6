package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zentity-io/zentity/internal/graph"
	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

// checkpoint captures the in-memory state of every record a commit
// may touch, so a failed commit restores instances to exactly their
// pre-commit state: values, lifecycle states, pending registrations,
// dirty flags.
type checkpoint struct {
	values     map[*entity.Record]map[string]any
	states     map[*entity.Record]entity.State
	inserts    []*entity.Record
	deletes    []*entity.Record
	relOps     []relOp
	registered []entity.Key
}

// backfill defers a foreign-key assignment until the referenced
// record's backend-generated key exists.
type backfill struct {
	target        *entity.Record
	field         string
	owner         *entity.Record
	ownerKeyField string
}

// Commit translates the session's pending changes into
// dependency-ordered driver statements and executes them inside one
// transaction. Inserts and dirty updates run parent-before-child,
// deletes child-before-parent. Commit is all-or-nothing: any failure
// rolls the transaction back, restores every record to its pre-commit
// state, and returns a *CommitError (or *CycleError before any
// statement is issued). On success every managed record gets a fresh
// snapshot and deleted records detach.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return entity.ErrSessionClosed
	}

	cp := s.capture()

	backfills, err := s.applyRelOps(cp)
	if err != nil {
		cp.restore(s)
		return err
	}

	inserts := append([]*entity.Record(nil), s.inserts...)
	inSet := make(map[*entity.Record]bool, len(inserts))
	for _, rec := range inserts {
		inSet[rec] = true
	}
	var updates []*entity.Record
	for _, rec := range s.ids.Records() {
		if rec.State() == entity.Managed && !inSet[rec] && s.tracker.IsDirty(rec) {
			updates = append(updates, rec)
		}
	}
	deletes := append([]*entity.Record(nil), s.deletes...)

	// Instance-local validation happens before any statement so a bad
	// value can never leave a partial transaction behind.
	pending := pendingFields(backfills)
	for _, rec := range append(append([]*entity.Record(nil), inserts...), updates...) {
		if err := validateRecord(rec, pending[rec]); err != nil {
			cp.restore(s)
			return err
		}
	}

	writeOrder, err := s.orderWrites(inserts, updates, backfills)
	if err != nil {
		cp.restore(s)
		return err
	}
	deleteOrder, err := s.orderDeletes(deletes)
	if err != nil {
		cp.restore(s)
		return err
	}

	tx, err := s.drv.Begin(ctx)
	if err != nil {
		cp.restore(s)
		return &CommitError{Err: err}
	}

	for _, rec := range writeOrder {
		if err := s.applyBackfills(rec, backfills); err != nil {
			return s.fail(tx, cp, rec, err)
		}
		if inSet[rec] {
			if err := s.execInsert(ctx, tx, rec, cp); err != nil {
				return s.fail(tx, cp, rec, err)
			}
			continue
		}
		if err := s.execUpdate(ctx, tx, rec); err != nil {
			return s.fail(tx, cp, rec, err)
		}
	}
	for _, rec := range deleteOrder {
		if err := s.execDelete(ctx, tx, rec); err != nil {
			return s.fail(tx, cp, rec, err)
		}
	}

	if err := tx.Commit(); err != nil {
		cp.restore(s)
		return &CommitError{Err: err}
	}

	// New baselines; deleted records leave the scope.
	for _, rec := range s.ids.Records() {
		if rec.State() == entity.Managed {
			s.tracker.Snapshot(rec)
		}
	}
	for _, rec := range deletes {
		if key, err := rec.Key(); err == nil {
			s.ids.Forget(key)
		}
		s.tracker.Forget(rec)
		rec.SetState(entity.Detached)
	}
	s.inserts = nil
	s.deletes = nil
	s.relOps = nil
	return nil
}

// capture snapshots the pre-commit state of every record in scope.
func (s *Session) capture() *checkpoint {
	cp := &checkpoint{
		values:  make(map[*entity.Record]map[string]any),
		states:  make(map[*entity.Record]entity.State),
		inserts: append([]*entity.Record(nil), s.inserts...),
		deletes: append([]*entity.Record(nil), s.deletes...),
		relOps:  append([]relOp(nil), s.relOps...),
	}
	add := func(rec *entity.Record) {
		if _, ok := cp.values[rec]; ok {
			return
		}
		cp.values[rec] = rec.Values()
		cp.states[rec] = rec.State()
	}
	for _, rec := range s.ids.Records() {
		add(rec)
	}
	for _, rec := range s.inserts {
		add(rec)
	}
	for _, rec := range s.deletes {
		add(rec)
	}
	for _, op := range s.relOps {
		add(op.owner)
		add(op.target)
	}
	return cp
}

// restore rewinds the session to the captured state.
func (cp *checkpoint) restore(s *Session) {
	for _, key := range cp.registered {
		s.ids.Forget(key)
	}
	for rec, vals := range cp.values {
		rec.ReplaceValues(vals)
		rec.SetState(cp.states[rec])
	}
	s.inserts = cp.inserts
	s.deletes = cp.deletes
	s.relOps = cp.relOps
}

// fail rolls back the transaction, restores the checkpoint, and wraps
// the cause.
func (s *Session) fail(tx driver.Tx, cp *checkpoint, rec *entity.Record, err error) error {
	_ = tx.Rollback()
	cp.restore(s)
	ce := &CommitError{Entity: rec.Descriptor().Name, Err: err}
	if key, kerr := rec.Key(); kerr == nil {
		ce.Key = key
	}
	return ce
}

// applyRelOps consumes the pending collection mutations: additions set
// or defer the member's foreign key, removals null it or schedule the
// member's deletion per the relationship's policy.
func (s *Session) applyRelOps(cp *checkpoint) ([]backfill, error) {
	var backfills []backfill
	for _, op := range s.relOps {
		ownerKey := op.owner.Descriptor().KeyFields()[0]
		if !op.add {
			switch op.rel.OnRemove {
			case entity.DeleteRow:
				if err := s.registerDeletedLocked(op.target); err != nil {
					return nil, fmt.Errorf("commit %s.%s: %w",
						op.owner.Descriptor().Name, op.rel.Name, err)
				}
			default:
				if err := op.target.Set(op.rel.ForeignKey, nil); err != nil {
					return nil, fmt.Errorf("commit %s.%s: %w",
						op.owner.Descriptor().Name, op.rel.Name, err)
				}
			}
			continue
		}
		if op.target.State() == entity.Transient {
			if err := s.registerNewLocked(op.target); err != nil {
				return nil, err
			}
			if key, err := op.target.Key(); err == nil {
				cp.registered = append(cp.registered, key)
			}
		}
		keyVal, err := op.owner.Get(ownerKey.Name)
		if err != nil {
			return nil, err
		}
		if keyVal == nil {
			backfills = append(backfills, backfill{
				target:        op.target,
				field:         op.rel.ForeignKey,
				owner:         op.owner,
				ownerKeyField: ownerKey.Name,
			})
			continue
		}
		if err := op.target.Set(op.rel.ForeignKey, keyVal); err != nil {
			return nil, fmt.Errorf("commit %s.%s: %w",
				op.owner.Descriptor().Name, op.rel.Name, err)
		}
	}
	return backfills, nil
}

// applyBackfills fills deferred foreign keys on rec whose owner has
// its key by now. Write ordering guarantees it does.
func (s *Session) applyBackfills(rec *entity.Record, backfills []backfill) error {
	for _, b := range backfills {
		if b.target != rec {
			continue
		}
		keyVal, err := b.owner.Get(b.ownerKeyField)
		if err != nil {
			return err
		}
		if keyVal == nil {
			return fmt.Errorf("%s: referenced %s still unkeyed: %w",
				rec.Descriptor().Name, b.owner.Descriptor().Name, entity.ErrMissingKey)
		}
		if err := rec.Set(b.field, keyVal); err != nil {
			return err
		}
	}
	return nil
}

// pendingFields indexes backfills by record: fields that validation
// must exempt because their value arrives during execution.
func pendingFields(backfills []backfill) map[*entity.Record]map[string]bool {
	out := make(map[*entity.Record]map[string]bool)
	for _, b := range backfills {
		if out[b.target] == nil {
			out[b.target] = make(map[string]bool)
		}
		out[b.target][b.field] = true
	}
	return out
}

// validateRecord checks a record's values before any statement,
// substituting kind-typed placeholders for backfill-pending fields.
func validateRecord(rec *entity.Record, pending map[string]bool) error {
	values := rec.Values()
	for name := range pending {
		f, err := rec.Descriptor().Field(name)
		if err != nil {
			return err
		}
		values[name] = zeroValue(f.Kind)
	}
	return rec.Descriptor().ValidateValues(values)
}

func zeroValue(kind entity.Kind) any {
	switch kind {
	case entity.KindString:
		return ""
	case entity.KindInt:
		return int64(0)
	case entity.KindFloat:
		return float64(0)
	case entity.KindBool:
		return false
	case entity.KindBytes:
		return []byte{}
	default:
		return nil
	}
}

// orderWrites topologically sorts inserts and updates so every record
// executes after the records it references. Returns *CycleError when
// the reference graph has no valid order.
func (s *Session) orderWrites(inserts, updates []*entity.Record, backfills []backfill) ([]*entity.Record, error) {
	batch := append(append([]*entity.Record(nil), inserts...), updates...)
	return s.orderBatch(batch, backfills, false)
}

// orderDeletes sorts deletes in reverse dependency order: a record is
// deleted before everything it references.
func (s *Session) orderDeletes(deletes []*entity.Record) ([]*entity.Record, error) {
	return s.orderBatch(deletes, nil, true)
}

func (s *Session) orderBatch(batch []*entity.Record, backfills []backfill, reverse bool) ([]*entity.Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	index := make(map[*entity.Record]int, len(batch))
	for i, rec := range batch {
		index[rec] = i
	}
	nodeID := func(i int) string { return fmt.Sprintf("%06d", i) }

	g := graph.New()
	for i := range batch {
		g.AddNode(nodeID(i))
	}
	for i, rec := range batch {
		deps, err := s.references(rec, backfills)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			j, ok := index[dep]
			if !ok {
				continue
			}
			if reverse {
				// Child rows go first on delete.
				g.AddEdge(nodeID(i), nodeID(j))
			} else {
				g.AddEdge(nodeID(j), nodeID(i))
			}
		}
	}

	order, err := g.TopoSort()
	if err != nil {
		var cyc *graph.CycleError
		if errors.As(err, &cyc) {
			labels := make([]string, 0, len(cyc.Nodes))
			for _, n := range cyc.Nodes {
				var i int
				fmt.Sscanf(n, "%d", &i)
				labels = append(labels, labelFor(batch[i]))
			}
			return nil, &CycleError{Entities: labels}
		}
		return nil, err
	}
	out := make([]*entity.Record, len(order))
	for i, n := range order {
		var idx int
		fmt.Sscanf(n, "%d", &idx)
		out[i] = batch[idx]
	}
	return out, nil
}

// references resolves the records rec points at through its to-one
// relationships: a loaded relationship slot wins, otherwise a set
// foreign key is looked up in the identity map. Backfill entries count
// as references since the owner's key must exist first.
func (s *Session) references(rec *entity.Record, backfills []backfill) ([]*entity.Record, error) {
	desc := rec.Descriptor()
	var deps []*entity.Record
	for i := range desc.Relationships {
		rel := &desc.Relationships[i]
		if rel.Cardinality != entity.ToOne {
			continue
		}
		if target, ok := rec.Related(rel.Name); ok {
			if target != nil {
				deps = append(deps, target)
			}
			continue
		}
		fkVal, err := rec.Get(rel.ForeignKey)
		if err != nil || fkVal == nil {
			continue
		}
		targetDesc, err := s.schema.Lookup(rel.Target)
		if err != nil {
			return nil, err
		}
		keyField := targetDesc.KeyFields()[0]
		key, err := entity.MakeKey(targetDesc, map[string]any{keyField.Name: fkVal})
		if err != nil {
			continue
		}
		if target, ok := s.ids.Get(key); ok {
			deps = append(deps, target)
		}
	}
	for _, b := range backfills {
		if b.target == rec {
			deps = append(deps, b.owner)
		}
	}
	return deps, nil
}

func (s *Session) execInsert(ctx context.Context, tx driver.Tx, rec *entity.Record, cp *checkpoint) error {
	desc := rec.Descriptor()
	values := rec.Values()
	var cols []string
	var args []any
	for i := range desc.Fields {
		f := &desc.Fields[i]
		v, ok := values[f.Name]
		if !ok || (v == nil && f.PrimaryKey) {
			continue
		}
		cols = append(cols, f.Column)
		args = append(args, v)
	}
	res, err := tx.Execute(ctx, driver.Statement{
		Op:         driver.OpInsert,
		Entity:     desc.Name,
		Table:      desc.Table,
		Columns:    cols,
		Values:     args,
		KeyColumns: keyColumns(desc),
	})
	if err != nil {
		return err
	}

	// Adopt a backend-generated integer key and register the identity.
	keys := desc.KeyFields()
	if _, kerr := rec.Key(); kerr != nil && len(keys) == 1 && keys[0].Kind == entity.KindInt && res.LastInsertID != 0 {
		if err := rec.Set(keys[0].Name, res.LastInsertID); err != nil {
			return err
		}
		key, err := s.ids.Register(rec)
		if err != nil {
			return err
		}
		cp.registered = append(cp.registered, key)
	}
	return nil
}

func (s *Session) execUpdate(ctx context.Context, tx driver.Tx, rec *entity.Record) error {
	deltas := s.tracker.Diff(rec)
	if len(deltas) == 0 {
		return nil
	}
	desc := rec.Descriptor()
	cols := make([]string, 0, len(deltas))
	args := make([]any, 0, len(deltas))
	for _, d := range deltas {
		f, err := desc.Field(d.Field)
		if err != nil {
			return err
		}
		cols = append(cols, f.Column)
		args = append(args, d.New)
	}
	where, err := pkPredicates(rec)
	if err != nil {
		return err
	}
	_, err = tx.Execute(ctx, driver.Statement{
		Op:         driver.OpUpdate,
		Entity:     desc.Name,
		Table:      desc.Table,
		Columns:    cols,
		Values:     args,
		Where:      where,
		KeyColumns: keyColumns(desc),
	})
	return err
}

func (s *Session) execDelete(ctx context.Context, tx driver.Tx, rec *entity.Record) error {
	where, err := pkPredicates(rec)
	if err != nil {
		return err
	}
	desc := rec.Descriptor()
	_, err = tx.Execute(ctx, driver.Statement{
		Op:         driver.OpDelete,
		Entity:     desc.Name,
		Table:      desc.Table,
		Where:      where,
		KeyColumns: keyColumns(desc),
	})
	return err
}

// pkPredicates builds the key predicates identifying one record.
func pkPredicates(rec *entity.Record) ([]driver.Predicate, error) {
	desc := rec.Descriptor()
	keys := desc.KeyFields()
	where := make([]driver.Predicate, 0, len(keys))
	for _, f := range keys {
		v, err := rec.Get(f.Name)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("%s.%s: %w", desc.Name, f.Name, entity.ErrMissingKey)
		}
		where = append(where, driver.Predicate{Column: f.Column, Value: v})
	}
	return where, nil
}

// labelFor names a record in diagnostics: its key when assigned, the
// type name otherwise.
func labelFor(rec *entity.Record) string {
	if key, err := rec.Key(); err == nil {
		return key.String()
	}
	return rec.Descriptor().Name + "#pending"
}
