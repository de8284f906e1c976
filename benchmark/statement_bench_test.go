package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/coregx/dbadapter"
)

// setupBenchConn creates an in-memory SQLite connection with a robots table.
func setupBenchConn(b *testing.B, opts ...dbadapter.Option) *dbadapter.Connection {
	conn, err := dbadapter.Connect(context.Background(),
		dbadapter.Descriptor{Adapter: "sqlite", DBName: ":memory:", UseSavepoints: true}, opts...)
	if err != nil {
		b.Fatalf("Failed to connect: %v", err)
	}

	_, err = conn.Execute(context.Background(), `
		CREATE TABLE robots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type TEXT,
			year INTEGER
		)
	`)
	if err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}

	b.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func BenchmarkInsertAsDict(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := conn.InsertAsDict(ctx, "robots", dbadapter.Dict{
			{"name", fmt.Sprintf("robot-%d", i)},
			{"type", "mechanical"},
			{"year", 1950 + i%70},
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecute_Positional(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Execute(ctx, "UPDATE robots SET year = ? WHERE id = ?", i, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecute_Named(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := conn.Execute(ctx, "UPDATE robots SET year = :year WHERE id = :id",
			dbadapter.Params{"year": i, "id": 1})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecute_Typed(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()
	types := []dbadapter.BindType{dbadapter.BindInt, dbadapter.BindInt}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.ExecuteTyped(ctx, "UPDATE robots SET year = ? WHERE id = ?", []any{"1984", "1"}, types); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStatementCache(b *testing.B) {
	for _, size := range []int{0, 64} {
		b.Run(fmt.Sprintf("cache=%d", size), func(b *testing.B) {
			conn := setupBenchConn(b, dbadapter.WithStatementCache(size))
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := conn.Execute(ctx, "UPDATE robots SET type = ? WHERE id = ?", "virtual", i%10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFetchAll(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := conn.Insert(ctx, "robots", []string{"name", "year"}, []any{fmt.Sprintf("robot-%d", i), 1950 + i}); err != nil {
			b.Fatal(err)
		}
	}

	for _, mode := range []dbadapter.FetchMode{dbadapter.FetchAssoc, dbadapter.FetchNum, dbadapter.FetchBoth} {
		b.Run(fmt.Sprint(mode), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				rows, err := conn.FetchAll(ctx, "SELECT id, name, type, year FROM robots WHERE year > ?", mode, 1960)
				if err != nil {
					b.Fatal(err)
				}
				if len(rows) == 0 {
					b.Fatal("no rows")
				}
			}
		})
	}
}

func BenchmarkNestedTransaction(b *testing.B) {
	for _, depth := range []int{1, 3, 8} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			conn := setupBenchConn(b)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for d := 0; d < depth; d++ {
					if err := conn.Begin(ctx); err != nil {
						b.Fatal(err)
					}
				}
				for d := 0; d < depth; d++ {
					if err := conn.Commit(ctx); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}

func BenchmarkDescribeTable(b *testing.B) {
	conn := setupBenchConn(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.DescribeTable(ctx, "robots", ""); err != nil {
			b.Fatal(err)
		}
	}
}
