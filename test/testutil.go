//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/coregx/dbadapter"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DatabaseSetup encapsulates a connection and the container behind it.
type DatabaseSetup struct {
	Conn      *dbadapter.Connection
	Desc      dbadapter.Descriptor
	Container testcontainers.Container
	Adapter   string
}

// Close cleans up database resources.
func (ds *DatabaseSetup) Close() {
	if ds.Conn != nil {
		ds.Conn.Close() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

// descriptorFromEnv builds a descriptor from PREFIX_HOST and PREFIX_PORT,
// so the suite can run against a local server without Docker.
func descriptorFromEnv(prefix, adapter string) (dbadapter.Descriptor, bool) {
	host := os.Getenv(prefix + "_HOST")
	if host == "" {
		return dbadapter.Descriptor{}, false
	}
	port, _ := strconv.Atoi(os.Getenv(prefix + "_PORT"))
	return dbadapter.Descriptor{
		Adapter:       adapter,
		Host:          host,
		Port:          port,
		Username:      envOr(prefix+"_USER", "user"),
		Password:      envOr(prefix+"_PASSWORD", "password"),
		DBName:        envOr(prefix+"_DBNAME", "testdb"),
		UseSavepoints: true,
	}, true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func connect(t *testing.T, desc dbadapter.Descriptor, container testcontainers.Container) *DatabaseSetup {
	t.Helper()
	conn, err := dbadapter.Connect(context.Background(), desc)
	require.NoError(t, err)
	return &DatabaseSetup{Conn: conn, Desc: desc, Container: container, Adapter: desc.Adapter}
}

// SetupPostgreSQL starts PostgreSQL in Docker unless POSTGRES_TEST_HOST is set.
func SetupPostgreSQL(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if desc, ok := descriptorFromEnv("POSTGRES_TEST", "postgres"); ok {
		desc.Options = map[string]string{"sslmode": "disable"}
		return connect(t, desc, nil)
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return connect(t, dbadapter.Descriptor{
		Adapter:       "postgres",
		Host:          host,
		Port:          port.Int(),
		Username:      "user",
		Password:      "password",
		DBName:        "testdb",
		UseSavepoints: true,
		Options:       map[string]string{"sslmode": "disable", "application_name": "dbadapter-it"},
	}, pgContainer)
}

// SetupMySQL starts MySQL in Docker unless MYSQL_TEST_HOST is set.
func SetupMySQL(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if desc, ok := descriptorFromEnv("MYSQL_TEST", "mysql"); ok {
		return connect(t, desc, nil)
	}

	mysqlContainer, err := mysql.Run(
		ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("user"),
		mysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}

	host, err := mysqlContainer.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlContainer.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return connect(t, dbadapter.Descriptor{
		Adapter:       "mysql",
		Host:          host,
		Port:          port.Int(),
		Username:      "user",
		Password:      "password",
		DBName:        "testdb",
		Charset:       "utf8mb4",
		UseSavepoints: true,
		Options:       map[string]string{"connect_timeout": "10s"},
	}, mysqlContainer)
}

// SetupSQLite opens an in-memory database. It always works.
func SetupSQLite(t *testing.T) *DatabaseSetup {
	return connect(t, dbadapter.Descriptor{Adapter: "sqlite", DBName: ":memory:", UseSavepoints: true}, nil)
}

// forEachEngine runs fn against every engine that can be started.
func forEachEngine(t *testing.T, fn func(t *testing.T, ds *DatabaseSetup)) {
	setups := map[string]func(*testing.T) *DatabaseSetup{
		"sqlite":   SetupSQLite,
		"postgres": SetupPostgreSQL,
		"mysql":    SetupMySQL,
	}
	for _, name := range []string{"sqlite", "postgres", "mysql"} {
		t.Run(name, func(t *testing.T) {
			ds := setups[name](t)
			t.Cleanup(ds.Close)
			fn(t, ds)
		})
	}
}

// robotsDefinition is the fixture table shared by the integration tests.
func robotsDefinition() dbadapter.TableDefinition {
	return dbadapter.TableDefinition{
		Columns: []dbadapter.Column{
			{Name: "id", Type: dbadapter.TypeInteger, Primary: true, AutoIncrement: true},
			{Name: "name", Type: dbadapter.TypeVarchar, Size: 70, NotNull: true},
			{Name: "type", Type: dbadapter.TypeVarchar, Size: 32, Default: dbadapter.Default("'mechanical'")},
			{Name: "year", Type: dbadapter.TypeInteger},
		},
		Indexes: []dbadapter.Index{
			{Name: "robots_name", Columns: []string{"name"}, Unique: true},
		},
	}
}
