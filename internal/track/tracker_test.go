package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zentity-io/zentity/pkg/entity"
)

func newOrder(t *testing.T) *entity.Record {
	t.Helper()
	schema := entity.NewSchema()
	desc := &entity.Descriptor{
		Name: "Order",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindString, PrimaryKey: true},
			{Name: "Total", Kind: entity.KindFloat},
			{Name: "Note", Kind: entity.KindString, Nullable: true},
		},
	}
	require.NoError(t, schema.Register(desc))
	rec := entity.NewRecord(desc)
	require.NoError(t, rec.Set("ID", "o1"))
	require.NoError(t, rec.Set("Total", 100.0))
	return rec
}

func TestDirtyRoundTrip(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	tr.Snapshot(rec)
	assert.False(t, tr.IsDirty(rec))

	require.NoError(t, rec.Set("Total", 150.0))
	assert.True(t, tr.IsDirty(rec))

	// Reverting the field by hand clears the dirty flag again.
	require.NoError(t, rec.Set("Total", 100.0))
	assert.False(t, tr.IsDirty(rec))
}

func TestDiffContents(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	tr.Snapshot(rec)

	require.NoError(t, rec.Set("Total", 150.0))
	require.NoError(t, rec.Set("Note", "rush"))

	deltas := tr.Diff(rec)
	require.Len(t, deltas, 2)
	// Deltas come out in descriptor field order.
	assert.Equal(t, entity.FieldDelta{Field: "Total", Old: 100.0, New: 150.0}, deltas[0])
	assert.Equal(t, entity.FieldDelta{Field: "Note", Old: nil, New: "rush"}, deltas[1])
}

func TestDiffUntrackedRecord(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	assert.Nil(t, tr.Diff(rec))
	assert.False(t, tr.IsDirty(rec))
	assert.False(t, tr.Has(rec))
}

func TestRevert(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	tr.Snapshot(rec)

	require.NoError(t, rec.Set("Total", 150.0))
	tr.Revert(rec)

	v, err := rec.Get("Total")
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)
	assert.False(t, tr.IsDirty(rec))
}

func TestSnapshotReplacesBaseline(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	tr.Snapshot(rec)

	require.NoError(t, rec.Set("Total", 150.0))
	tr.Snapshot(rec)
	assert.False(t, tr.IsDirty(rec))
}

func TestForget(t *testing.T) {
	rec := newOrder(t)
	tr := New()
	tr.Snapshot(rec)
	tr.Forget(rec)
	assert.False(t, tr.Has(rec))
	// Revert after forget is a no-op.
	require.NoError(t, rec.Set("Total", 1.0))
	tr.Revert(rec)
	v, err := rec.Get("Total")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}
