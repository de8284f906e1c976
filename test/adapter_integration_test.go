//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/coregx/dbadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_SchemaRoundTrip(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ds *DatabaseSetup) {
		ctx := context.Background()
		conn := ds.Conn
		require.NoError(t, conn.DropTable(ctx, "robots", "", true))

		require.NoError(t, conn.CreateTable(ctx, "robots", "", robotsDefinition()))
		t.Cleanup(func() { _ = conn.DropTable(ctx, "robots", "", true) })

		exists, err := conn.TableExists(ctx, "robots", "")
		require.NoError(t, err)
		assert.True(t, exists)

		tables, err := conn.ListTables(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, tables, "robots")

		cols, err := conn.DescribeColumns(ctx, "robots", "")
		require.NoError(t, err)
		require.Len(t, cols, 4)
		assert.Equal(t, []string{"id", "name", "type", "year"},
			[]string{cols[0].Name, cols[1].Name, cols[2].Name, cols[3].Name})
		assert.True(t, cols[0].Primary)
		assert.True(t, cols[0].AutoIncrement)
		assert.Equal(t, dbadapter.TypeVarchar, cols[1].Type)
		assert.Equal(t, 70, cols[1].Size)
		assert.True(t, cols[1].NotNull)
		assert.True(t, cols[2].HasDefault())
		for i, c := range cols {
			assert.Equal(t, i+1, c.Position, c.Name)
		}

		indexes, err := conn.DescribeIndexes(ctx, "robots", "")
		require.NoError(t, err)
		require.Contains(t, indexes, "PRIMARY")
		assert.Equal(t, []string{"id"}, indexes["PRIMARY"].Columns)
		require.Contains(t, indexes, "robots_name")
		assert.True(t, indexes["robots_name"].Unique)

		require.NoError(t, conn.AddColumn(ctx, "robots", "", dbadapter.Column{Name: "serial", Type: dbadapter.TypeVarchar, Size: 16}))
		cols, err = conn.DescribeColumns(ctx, "robots", "")
		require.NoError(t, err)
		assert.Equal(t, "serial", cols[len(cols)-1].Name)
		require.NoError(t, conn.DropColumn(ctx, "robots", "", "serial"))

		_, err = conn.DescribeColumns(ctx, "ghosts", "")
		assert.ErrorIs(t, err, dbadapter.ErrNoSuchTable)
	})
}

func TestIntegration_References(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ds *DatabaseSetup) {
		ctx := context.Background()
		conn := ds.Conn
		require.NoError(t, conn.DropTable(ctx, "parts", "", true))
		require.NoError(t, conn.DropTable(ctx, "robots", "", true))

		require.NoError(t, conn.CreateTable(ctx, "robots", "", robotsDefinition()))
		require.NoError(t, conn.CreateTable(ctx, "parts", "", dbadapter.TableDefinition{
			Columns: []dbadapter.Column{
				{Name: "id", Type: dbadapter.TypeInteger, Primary: true, AutoIncrement: true},
				{Name: "robot_id", Type: dbadapter.TypeInteger, NotNull: true},
			},
			References: []dbadapter.Reference{{
				Name:              "parts_robot",
				Columns:           []string{"robot_id"},
				ReferencedTable:   "robots",
				ReferencedColumns: []string{"id"},
				OnDelete:          "CASCADE",
			}},
		}))
		t.Cleanup(func() {
			_ = conn.DropTable(ctx, "parts", "", true)
			_ = conn.DropTable(ctx, "robots", "", true)
		})

		refs, err := conn.DescribeReferences(ctx, "parts", "")
		require.NoError(t, err)
		require.Len(t, refs, 1)
		for _, ref := range refs {
			assert.Equal(t, []string{"robot_id"}, ref.Columns)
			assert.Equal(t, "robots", ref.ReferencedTable)
			assert.Equal(t, []string{"id"}, ref.ReferencedColumns)
			assert.Equal(t, "CASCADE", ref.OnDelete)
		}
	})
}

func TestIntegration_NestedTransactions(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ds *DatabaseSetup) {
		ctx := context.Background()
		conn := ds.Conn
		require.NoError(t, conn.DropTable(ctx, "robots", "", true))
		require.NoError(t, conn.CreateTable(ctx, "robots", "", robotsDefinition()))
		t.Cleanup(func() { _ = conn.DropTable(ctx, "robots", "", true) })

		err := conn.Transactional(ctx, func(ctx context.Context) error {
			if err := conn.InsertAsDict(ctx, "robots", dbadapter.Dict{{"name", "Astro Boy"}, {"year", 1952}}); err != nil {
				return err
			}
			inner := conn.Transactional(ctx, func(ctx context.Context) error {
				if err := conn.InsertAsDict(ctx, "robots", dbadapter.Dict{{"name", "Robotina"}, {"year", 1972}}); err != nil {
					return err
				}
				assert.Equal(t, 2, conn.TransactionLevel())
				return errors.New("discard")
			})
			assert.EqualError(t, inner, "discard")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, conn.TransactionLevel())

		count, ok, err := conn.FetchColumn(ctx, "SELECT COUNT(*) FROM robots", 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.EqualValues(t, 1, count)

		// Introspection inside a transaction leaves the depth alone.
		require.NoError(t, conn.Begin(ctx))
		_, err = conn.DescribeIndexes(ctx, "robots", "")
		require.NoError(t, err)
		assert.Equal(t, 1, conn.TransactionLevel())
		require.NoError(t, conn.Rollback(ctx))
	})
}

func TestIntegration_StatementsAndErrors(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ds *DatabaseSetup) {
		ctx := context.Background()
		conn := ds.Conn
		require.NoError(t, conn.DropTable(ctx, "robots", "", true))
		require.NoError(t, conn.CreateTable(ctx, "robots", "", robotsDefinition()))
		t.Cleanup(func() { _ = conn.DropTable(ctx, "robots", "", true) })

		require.NoError(t, conn.InsertAsDict(ctx, "robots", dbadapter.Dict{{"name", "Astro Boy"}, {"year", 1952}}))
		require.NoError(t, conn.Insert(ctx, "robots", []string{"name", "year"}, []any{"Terminator", "1984"},
			dbadapter.BindStr, dbadapter.BindInt))

		n, err := conn.Update(ctx, "robots", []string{"type"}, []any{"cyborg"},
			dbadapter.Where{Condition: "name = :name", Bind: []any{dbadapter.Params{"name": "Terminator"}}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, conn.UpsertAsDict(ctx, "robots",
			dbadapter.Dict{{"name", "Astro Boy"}, {"year", 2003}}, []string{"name"}, []string{"year"}))

		rows, err := conn.FetchAll(ctx, "SELECT name, type, year FROM robots ORDER BY name", dbadapter.FetchAssoc)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		year, _ := rows[0].Get("year")
		assert.EqualValues(t, 2003, year)
		typ, _ := rows[1].Get("type")
		assert.Equal(t, "cyborg", toString(typ))

		// NOT NULL violation names the column.
		err = conn.InsertAsDict(ctx, "robots", dbadapter.Dict{{"name", nil}})
		var execErr *dbadapter.SQLExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "name", execErr.Column)
		assert.NotEmpty(t, execErr.Code)
		msg, ok := dbadapter.MessageFromError(err)
		require.True(t, ok)
		assert.Equal(t, "name", msg.Field)

		// Bind errors never reach the engine.
		before := conn.SQLStatement()
		_, err = conn.Execute(ctx, "DELETE FROM robots WHERE id = ? AND name = :name", 1)
		var style *dbadapter.InvalidBindStyleError
		require.ErrorAs(t, err, &style)
		assert.Equal(t, before, conn.SQLStatement())

		n, err = conn.Delete(ctx, "robots", dbadapter.Where{Condition: "year > ?", Bind: []any{2000}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestIntegration_PersistentPools(t *testing.T) {
	forEachEngine(t, func(t *testing.T, ds *DatabaseSetup) {
		if ds.Adapter == "sqlite" {
			t.Skip("in-memory databases are private to their link")
		}
		desc := ds.Desc
		desc.Persistent = true

		a, err := dbadapter.Connect(context.Background(), desc)
		require.NoError(t, err)
		b, err := dbadapter.Connect(context.Background(), desc)
		require.NoError(t, err)
		assert.NotEqual(t, a.ConnectionID(), b.ConnectionID())

		require.NoError(t, a.Close())
		require.NoError(t, b.Ping(context.Background()), "closing one persistent connection keeps the pool")
		require.NoError(t, b.Close())
		require.NoError(t, dbadapter.ClosePersistentPools())
	})
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}
