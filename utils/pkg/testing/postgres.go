package rf2testing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresConfig holds the PostgreSQL test container configuration.
type PostgresConfig struct {
	Database       string
	Username       string
	Password       string
	ContainerImage string
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "rf2"
	}
	if cfg.Username == "" {
		cfg.Username = "rf2"
	}
	if cfg.Password == "" {
		cfg.Password = "rf2"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "postgres:16-alpine"
	}
	return nil
}

// Postgres is a running PostgreSQL test container.
type Postgres struct {
	log       *slog.Logger
	connStr   string
	container *tcpostgres.PostgresContainer
}

func (db *Postgres) ConnStr() string {
	return db.connStr
}

// Close terminates the container.
func (db *Postgres) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(ctx); err != nil {
		db.log.Error("failed to terminate PostgreSQL container", "error", err)
	}
}

// NewPostgres starts a PostgreSQL container, retrying transient start-up
// failures.
func NewPostgres(ctx context.Context, log *slog.Logger, cfg *PostgresConfig) (*Postgres, error) {
	if cfg == nil {
		cfg = &PostgresConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres config: %w", err)
	}

	var container *tcpostgres.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcpostgres.Run(ctx,
			cfg.ContainerImage,
			tcpostgres.WithDatabase(cfg.Database),
			tcpostgres.WithUsername(cfg.Username),
			tcpostgres.WithPassword(cfg.Password),
			tcpostgres.BasicWaitStrategies(),
			tcpostgres.WithSQLDriver("pgx"),
		)
		if err == nil {
			break
		}
		lastErr = err
		if !isRetryableContainerStartErr(err) || attempt == 3 {
			return nil, fmt.Errorf("failed to start PostgreSQL container after retries: %w", lastErr)
		}
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}
	return &Postgres{log: log, connStr: connStr, container: container}, nil
}

// NewPostgresForTest starts a container that is terminated when t finishes.
// The test is skipped in short mode.
func NewPostgresForTest(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	db, err := NewPostgres(t.Context(), NewLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func isRetryableContainerStartErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded")
}
