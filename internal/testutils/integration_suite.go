package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"docqa/internal/config"
)

const (
	dbName = "docqa_test"
	dbUser = "test"
	dbPass = "test"
)

// IntegrationSuite runs a throwaway Postgres with the service migrations
// applied.
type IntegrationSuite struct {
	T  *testing.T
	DB *sql.DB

	host        string
	port        int
	pgContainer *postgres.PostgresContainer
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// MigrationPath is the file:// URL of the repository migrations.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(b), "..", "..", "migrations"))
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())

	s.host, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	mapped, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.port = mapped.Int()
}

// GetAppConfig points a config at the suite database with local storage and
// no external model or queue.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	dir := s.T.TempDir()
	return &config.Config{
		DBHost:                     s.host,
		DBPort:                     s.port,
		DBUser:                     dbUser,
		DBPass:                     dbPass,
		DBName:                     dbName,
		MigrationPath:              MigrationPath(),
		EnableAPI:                  true,
		ServerPort:                 18000,
		PublicURL:                  "http://localhost:18000",
		QueryLogPath:               filepath.Join(dir, "query.log"),
		StoragePath:                filepath.Join(dir, "uploads"),
		MaxUploadSizeMB:            5,
		ChunkStore:                 config.ChunkStoreFS,
		ChunkDir:                   filepath.Join(dir, "chunks"),
		Recognizer:                 config.RecognizerNone,
		RequestsPerMinute:          60,
		TokensPerMinute:            60000,
		MaxConcurrentRequests:      4,
		ChunkSize:                  1000,
		ChunkOverlap:               200,
		TopK:                       3,
		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}
}

func (s *IntegrationSuite) Teardown() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(context.Background())
	}
}
