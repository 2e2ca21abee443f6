package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zentity-io/zentity/pkg/driver"
	"github.com/zentity-io/zentity/pkg/entity"
	"github.com/zentity-io/zentity/pkg/session"
)

func openTestDriver(t *testing.T) *Driver {
	t.Helper()
	drv, err := Open(entity.Config{Backend: entity.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func TestExecuteRoundTrip(t *testing.T) {
	ctx := context.Background()
	drv := openTestDriver(t)
	schema := blogSchema(t)
	require.NoError(t, drv.CreateTables(ctx, schema))

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := drv.Execute(ctx, driver.Statement{
		Op:      driver.OpInsert,
		Entity:  "Post",
		Table:   "post",
		Columns: []string{"id", "title", "draft", "published_at", "score"},
		Values:  []any{"p1", "hello", false, when, 4.5},
	})
	require.NoError(t, err)

	res, err := drv.Execute(ctx, driver.Statement{
		Op:     driver.OpSelect,
		Entity: "Post",
		Table:  "post",
		Where:  []driver.Predicate{{Column: "id", Value: "p1"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "hello", row["title"])
	assert.Equal(t, int64(0), row["draft"])
	assert.Equal(t, "2024-03-01T12:00:00Z", row["published_at"])
	assert.Equal(t, 4.5, row["score"])
}

func TestTxRollback(t *testing.T) {
	ctx := context.Background()
	drv := openTestDriver(t)
	require.NoError(t, drv.CreateTables(ctx, blogSchema(t)))

	tx, err := drv.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Execute(ctx, driver.Statement{
		Op:      driver.OpInsert,
		Entity:  "Author",
		Table:   "author",
		Columns: []string{"id", "name"},
		Values:  []any{"a1", "Ada"},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	res, err := drv.Execute(ctx, driver.Statement{
		Op: driver.OpSelect, Entity: "Author", Table: "author",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestExecuteWrapsErrors(t *testing.T) {
	ctx := context.Background()
	drv := openTestDriver(t)

	// No tables created: the select must fail with a typed error.
	_, err := drv.Execute(ctx, driver.Statement{
		Op: driver.OpSelect, Entity: "Author", Table: "author",
	})
	var derr *driver.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, driver.OpSelect, derr.Op)
	assert.Equal(t, "Author", derr.Entity)
}

// TestReservedWordTable exercises a schema whose derived identifiers
// collide with SQL keywords: entity Order lands on table "order".
func TestReservedWordTable(t *testing.T) {
	ctx := context.Background()
	drv := openTestDriver(t)

	schema := entity.NewSchema()
	require.NoError(t, schema.Register(&entity.Descriptor{
		Name: "Order",
		Fields: []entity.Field{
			{Name: "ID", Kind: entity.KindString, PrimaryKey: true},
			{Name: "Total", Kind: entity.KindFloat},
		},
	}))
	require.NoError(t, schema.Freeze())
	require.NoError(t, drv.CreateTables(ctx, schema))

	sess, err := session.New(drv, schema)
	require.NoError(t, err)
	defer sess.Close()

	desc, err := schema.Lookup("Order")
	require.NoError(t, err)
	rec := entity.NewRecord(desc)
	require.NoError(t, rec.Set("ID", "o1"))
	require.NoError(t, rec.Set("Total", 100.0))
	require.NoError(t, sess.RegisterNew(rec))
	require.NoError(t, sess.Commit(ctx))

	require.NoError(t, rec.Set("Total", 150.0))
	require.NoError(t, sess.Commit(ctx))

	res, err := drv.Execute(ctx, driver.Statement{
		Op:     driver.OpSelect,
		Entity: "Order",
		Table:  "order",
		Where:  []driver.Predicate{{Column: "id", Value: "o1"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 150.0, res.Rows[0]["total"])

	require.NoError(t, sess.RegisterDeleted(rec))
	require.NoError(t, sess.Commit(ctx))
	res, err = drv.Execute(ctx, driver.Statement{
		Op: driver.OpSelect, Entity: "Order", Table: "order",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

// TestSessionOverSQLite drives a full unit of work through the real
// backend: create tables, commit a graph of rows, then read it back
// through a fresh session.
func TestSessionOverSQLite(t *testing.T) {
	ctx := context.Background()
	drv := openTestDriver(t)
	schema := blogSchema(t)
	require.NoError(t, drv.CreateTables(ctx, schema))

	sess, err := session.New(drv, schema)
	require.NoError(t, err)

	author, err := sess.GetOrCreate(ctx, "Author", map[string]any{"Name": "Ada"})
	require.NoError(t, err)

	postDesc, err := schema.Lookup("Post")
	require.NoError(t, err)
	post := entity.NewRecord(postDesc)
	require.NoError(t, post.Set("Title", "hello"))
	require.NoError(t, post.Set("Draft", true))

	posts, err := sess.Collection(author, "Posts")
	require.NoError(t, err)
	require.NoError(t, posts.Add(post))
	require.NoError(t, sess.Commit(ctx))

	require.NoError(t, post.Set("Draft", false))
	require.NoError(t, post.Set("PublishedAt", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, sess.Commit(ctx))
	sess.Close()

	// A fresh session sees the committed state.
	check, err := session.New(drv, schema)
	require.NoError(t, err)
	defer check.Close()

	postID, err := post.Get("ID")
	require.NoError(t, err)
	reloaded, err := check.Load(ctx, "Post", postID)
	require.NoError(t, err)

	draft, err := reloaded.Get("Draft")
	require.NoError(t, err)
	assert.Equal(t, false, draft)

	owner, err := check.Resolve(ctx, reloaded, "Author")
	require.NoError(t, err)
	require.NotNil(t, owner)
	name, err := owner.Get("Name")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	all, err := check.Collection(owner, "Posts")
	require.NoError(t, err)
	members, err := all.All(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}
