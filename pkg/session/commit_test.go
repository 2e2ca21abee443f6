package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zentity-io/zentity/internal/memdriver"
	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
)

func freezeSchema(t *testing.T, descs ...*entity.Descriptor) *entity.Schema {
	t.Helper()
	schema := entity.NewSchema()
	for _, d := range descs {
		require.NoError(t, schema.Register(d))
	}
	require.NoError(t, schema.Freeze())
	return schema
}

func newRecord(t *testing.T, schema *entity.Schema, typeName string) *entity.Record {
	t.Helper()
	desc, err := schema.Lookup(typeName)
	require.NoError(t, err)
	return entity.NewRecord(desc)
}

func TestCommitInsertDependencyOrdering(t *testing.T) {
	ctx := context.Background()
	drv, sess := setup(t)

	// Register the dependent first to prove ordering is topological,
	// not positional.
	order := newRecord(t, sess.schema, "Order")
	require.NoError(t, order.Set("Total", 10.0))
	require.NoError(t, sess.RegisterNew(order))

	cust := newRecord(t, sess.schema, "Customer")
	require.NoError(t, sess.RegisterNew(cust))
	custID, err := cust.Get("ID")
	require.NoError(t, err)
	require.NoError(t, order.Set("CustomerID", custID))

	require.NoError(t, sess.Commit(ctx))

	inserts := statements(drv, driver.OpInsert)
	require.Len(t, inserts, 2)
	assert.Equal(t, "Customer", inserts[0].Entity)
	assert.Equal(t, "Order", inserts[1].Entity)
}

func TestCommitDeleteDependencyOrdering(t *testing.T) {
	ctx := context.Background()
	drv, sess := setup(t)
	drv.Seed("customer", driver.Row{"id": "c1", "name": "Ada"})
	drv.Seed("order", driver.Row{"id": "o1", "customer_id": "c1", "total": 10.0})

	cust, err := sess.Load(ctx, "Customer", "c1")
	require.NoError(t, err)
	order, err := sess.Load(ctx, "Order", "o1")
	require.NoError(t, err)

	// Deleting the referenced side first must still delete the
	// dependent row first.
	require.NoError(t, sess.RegisterDeleted(cust))
	require.NoError(t, sess.RegisterDeleted(order))
	require.NoError(t, sess.Commit(ctx))

	deletes := statements(drv, driver.OpDelete)
	require.Len(t, deletes, 2)
	assert.Equal(t, "Order", deletes[0].Entity)
	assert.Equal(t, "Customer", deletes[1].Entity)

	assert.Equal(t, entity.Detached, cust.State())
	assert.Equal(t, entity.Detached, order.State())
	assert.Empty(t, drv.Rows("order"))
}

func TestCommitCycleDetection(t *testing.T) {
	ctx := context.Background()
	schema := freezeSchema(t, &entity.Descriptor{
		Name: "Employee",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindString, PrimaryKey: true},
			{Name: "MentorID", Kind: entity.KindString, Nullable: true},
		},
		Relationships: []entity.Relationship{
			{Name: "Mentor", Target: "Employee", Cardinality: entity.ToOne, ForeignKey: "MentorID"},
		},
	})
	drv := memdriver.New()
	sess, err := New(drv, schema)
	require.NoError(t, err)
	defer sess.Close()

	a := newRecord(t, schema, "Employee")
	b := newRecord(t, schema, "Employee")
	require.NoError(t, sess.RegisterNew(a))
	require.NoError(t, sess.RegisterNew(b))
	aID, err := a.Get("ID")
	require.NoError(t, err)
	bID, err := b.Get("ID")
	require.NoError(t, err)
	require.NoError(t, a.Set("MentorID", bID))
	require.NoError(t, b.Set("MentorID", aID))

	err = sess.Commit(ctx)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, entity.ErrCyclicDependency)
	assert.Len(t, cerr.Entities, 2)

	// The cycle is caught before any statement reaches the driver.
	assert.Empty(t, drv.Journal())
	assert.Equal(t, entity.Managed, a.State())
	assert.Equal(t, entity.Managed, b.State())

	// Breaking the cycle lets the same session commit.
	require.NoError(t, a.Set("MentorID", nil))
	require.NoError(t, sess.Commit(ctx))
	assert.Len(t, drv.Rows("employee"), 2)
}

func TestCommitAtomicity(t *testing.T) {
	ctx := context.Background()
	drv, sess := setup(t)
	drv.Seed("order",
		driver.Row{"id": "o1", "total": 100.0},
		driver.Row{"id": "o2", "total": 200.0},
	)

	o1, err := sess.Load(ctx, "Order", "o1")
	require.NoError(t, err)
	o2, err := sess.Load(ctx, "Order", "o2")
	require.NoError(t, err)
	require.NoError(t, o1.Set("Total", 101.0))
	require.NoError(t, o2.Set("Total", 201.0))

	drv.FailOn(driver.OpUpdate, "Order")
	err = sess.Commit(ctx)
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Order", cerr.Entity)
	assert.ErrorIs(t, err, memdriver.ErrInjected)

	// The store is untouched and the in-memory state still carries
	// the same pending work.
	assert.Equal(t, 100.0, drv.Rows("order")[0]["total"])
	assert.Equal(t, 200.0, drv.Rows("order")[1]["total"])
	assert.True(t, sess.IsDirty(o1))
	assert.True(t, sess.IsDirty(o2))
	assert.Equal(t, entity.Managed, o1.State())

	// Clearing the fault lets the same session retry.
	drv.FailNone()
	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 101.0, drv.Rows("order")[0]["total"])
	assert.Equal(t, 201.0, drv.Rows("order")[1]["total"])
	assert.False(t, sess.IsDirty(o1))
}

func TestCommitFailurePreservesPendingInsert(t *testing.T) {
	ctx := context.Background()
	drv, sess := setup(t)

	cust := newRecord(t, sess.schema, "Customer")
	require.NoError(t, cust.Set("Name", "Ada"))
	require.NoError(t, sess.RegisterNew(cust))

	drv.FailOn(driver.OpInsert, "Customer")
	require.Error(t, sess.Commit(ctx))
	assert.Empty(t, drv.Rows("customer"))
	assert.Equal(t, entity.Managed, cust.State())

	drv.FailNone()
	require.NoError(t, sess.Commit(ctx))
	assert.Len(t, drv.Rows("customer"), 1)
}

func TestCommitValidationBeforeStatements(t *testing.T) {
	ctx := context.Background()
	drv, sess := setup(t)

	// Total is non-nullable and never set.
	order := newRecord(t, sess.schema, "Order")
	require.NoError(t, sess.RegisterNew(order))

	err := sess.Commit(ctx)
	assert.ErrorIs(t, err, entity.ErrNullValue)
	assert.Empty(t, drv.Journal())
	assert.Equal(t, entity.Managed, order.State())
}

func TestCommitBackendGeneratedKey(t *testing.T) {
	ctx := context.Background()
	schema := freezeSchema(t, &entity.Descriptor{
		Name: "Invoice",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindInt, PrimaryKey: true},
			{Name: "Ref", Kind: entity.KindString},
		},
	})
	drv := memdriver.New()
	sess, err := New(drv, schema)
	require.NoError(t, err)
	defer sess.Close()

	inv := newRecord(t, schema, "Invoice")
	require.NoError(t, inv.Set("Ref", "INV-1"))
	require.NoError(t, sess.RegisterNew(inv))

	// Integer keys stay unset until the backend assigns one.
	_, err = inv.Key()
	assert.ErrorIs(t, err, entity.ErrMissingKey)

	require.NoError(t, sess.Commit(ctx))
	id, err := inv.Get("ID")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// The adopted key registers the identity: loading it answers from
	// the map without a query.
	drv.ClearJournal()
	got, err := sess.Load(ctx, "Invoice", int64(1))
	require.NoError(t, err)
	assert.Same(t, inv, got)
	assert.Empty(t, drv.Journal())
}

func TestCommitForeignKeyBackfill(t *testing.T) {
	ctx := context.Background()
	schema := freezeSchema(t,
		&entity.Descriptor{
			Name: "Ledger",
			Fields: []entity.Field{
				{Name: "ID", Kind: entity.KindInt, PrimaryKey: true},
				{Name: "Name", Kind: entity.KindString},
			},
			Relationships: []entity.Relationship{
				{Name: "Entries", Target: "Entry", Cardinality: entity.ToMany, ForeignKey: "LedgerID"},
			},
		},
		&entity.Descriptor{
			Name: "Entry",
			Fields: []entity.Field{
				{Name: "ID", Kind: entity.KindInt, PrimaryKey: true},
				{Name: "LedgerID", Kind: entity.KindInt, Nullable: true},
				{Name: "Amount", Kind: entity.KindFloat},
			},
		},
	)
	drv := memdriver.New()
	sess, err := New(drv, schema)
	require.NoError(t, err)
	defer sess.Close()

	ledger := newRecord(t, schema, "Ledger")
	require.NoError(t, ledger.Set("Name", "general"))
	require.NoError(t, sess.RegisterNew(ledger))

	entry := newRecord(t, schema, "Entry")
	require.NoError(t, entry.Set("Amount", 42.0))

	col, err := sess.Collection(ledger, "Entries")
	require.NoError(t, err)
	require.NoError(t, col.Add(entry))

	require.NoError(t, sess.Commit(ctx))

	// The ledger row goes first and its generated key lands in the
	// entry's foreign-key column.
	inserts := statements(drv, driver.OpInsert)
	require.Len(t, inserts, 2)
	assert.Equal(t, "Ledger", inserts[0].Entity)
	assert.Equal(t, "Entry", inserts[1].Entity)

	ledgerID, err := ledger.Get("ID")
	require.NoError(t, err)
	fk, err := entry.Get("LedgerID")
	require.NoError(t, err)
	assert.Equal(t, ledgerID, fk)
	assert.Equal(t, ledgerID, drv.Rows("entry")[0]["ledger_id"])
}
