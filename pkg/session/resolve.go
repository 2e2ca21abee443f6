package session

import (
	"context"
	"fmt"

	"github.com/zentity-io/zentity/pkg/entity"
)

// Resolve materializes a to-one relationship of a managed record. The
// first access loads the target through the driver and caches it on
// the owning record's relationship slot; later accesses answer from
// the slot. A nil foreign key resolves to (nil, nil). Loading always
// goes through the identity map, so resolving and loading the same
// row yield the same instance.
func (s *Session) Resolve(ctx context.Context, rec *entity.Record, relName string) (*entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	desc := rec.Descriptor()
	rel, err := desc.Relationship(relName)
	if err != nil {
		return nil, err
	}
	if rel.Cardinality != entity.ToOne {
		return nil, fmt.Errorf("%s.%s: %w", desc.Name, relName, entity.ErrWrongCardinality)
	}
	if target, ok := rec.Related(relName); ok {
		return target, nil
	}
	fkVal, err := rec.Get(rel.ForeignKey)
	if err != nil {
		return nil, err
	}
	if fkVal == nil {
		rec.SetRelated(relName, nil)
		return nil, nil
	}
	target, err := s.loadLocked(ctx, rel.Target, fkVal)
	if err != nil {
		return nil, err
	}
	rec.SetRelated(relName, target)
	return target, nil
}

// Collection returns the handle for a to-many relationship of a
// managed record. The handle is lazy and restartable: each All call
// re-issues the scoping query unless Cache was called. Add and Remove
// record pending membership changes that Commit turns into
// foreign-key updates or row deletions.
func (s *Session) Collection(rec *entity.Record, relName string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	desc := rec.Descriptor()
	rel, err := desc.Relationship(relName)
	if err != nil {
		return nil, err
	}
	if rel.Cardinality != entity.ToMany {
		return nil, fmt.Errorf("%s.%s: %w", desc.Name, relName, entity.ErrWrongCardinality)
	}
	return &Collection{s: s, owner: rec, rel: rel}, nil
}

// Collection is the lazy view of one to-many relationship.
type Collection struct {
	s        *Session
	owner    *entity.Record
	rel      *entity.Relationship
	cached   []*entity.Record
	hasCache bool
}

// All returns the current members. Without a cache every call
// re-issues the query; the result reflects storage plus any members
// already managed under the same keys.
func (c *Collection) All(ctx context.Context) ([]*entity.Record, error) {
	if c.hasCache {
		return append([]*entity.Record(nil), c.cached...), nil
	}
	return c.query(ctx)
}

// Cache runs the query once and pins the result; later All calls
// answer from it until Invalidate.
func (c *Collection) Cache(ctx context.Context) error {
	recs, err := c.query(ctx)
	if err != nil {
		return err
	}
	c.cached = recs
	c.hasCache = true
	return nil
}

// Invalidate drops the pinned result.
func (c *Collection) Invalidate() {
	c.cached = nil
	c.hasCache = false
}

// Add records a pending membership addition: at commit the member's
// foreign key is set to the owner's key. A Transient member is
// registered for insertion at commit time.
func (c *Collection) Add(member *entity.Record) error {
	if err := c.check(member); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return entity.ErrSessionClosed
	}
	c.s.relOps = append(c.s.relOps, relOp{owner: c.owner, rel: c.rel, target: member, add: true})
	if c.hasCache {
		c.cached = append(c.cached, member)
	}
	return nil
}

// Remove records a pending membership removal, applied at commit per
// the relationship's OnRemove policy: ClearKey nulls the member's
// foreign key, DeleteRow deletes the member.
func (c *Collection) Remove(member *entity.Record) error {
	if err := c.check(member); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return entity.ErrSessionClosed
	}
	c.s.relOps = append(c.s.relOps, relOp{owner: c.owner, rel: c.rel, target: member, add: false})
	if c.hasCache {
		for i, rec := range c.cached {
			if rec == member {
				c.cached = append(c.cached[:i], c.cached[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (c *Collection) check(member *entity.Record) error {
	if member.Descriptor().Name != c.rel.Target {
		return fmt.Errorf("%s member of %s collection: %w",
			member.Descriptor().Name, c.rel.Target, entity.ErrTypeMismatch)
	}
	return nil
}

// query scopes a filter to the owner's key and fetches the members.
func (c *Collection) query(ctx context.Context) ([]*entity.Record, error) {
	keyField := c.owner.Descriptor().KeyFields()[0]
	keyVal, err := c.owner.Get(keyField.Name)
	if err != nil {
		return nil, err
	}
	if keyVal == nil {
		return nil, fmt.Errorf("%s: %w", c.owner.Descriptor().Name, entity.ErrMissingKey)
	}
	return c.s.Filter(ctx, c.rel.Target, map[string]any{c.rel.ForeignKey: keyVal})
}
