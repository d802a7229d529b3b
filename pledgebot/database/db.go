package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/goalpledge/pledgebot/internal/domain/logger"
	"github.com/goalpledge/pledgebot/internal/gateways/database/models"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	schemaVersion        = 1
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
	// LogQueries attaches the query hook to bun, logging every statement at debug level.
	LogQueries bool `toml:"log_queries"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		var conn net.Conn
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			_ = conn.Close()
			break
		}
		slog.Warn("Database not reachable yet",
			slog.String("type", "db"),
			slog.String("addr", addr),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(defaultRetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	bunDB := newBunDB(pool)
	if cfg.LogQueries {
		bunDB.AddQueryHook(logger.QueryHook{})
	}
	return &DB{pool: pool, bunDB: bunDB}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

// newBunDB opens a second connection set through pgdriver, sharing the pool's credentials.
// PG_SSLMODE overrides the default "disable".
func newBunDB(pool *pgxpool.Pool) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	conn := pool.Config().ConnConfig
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		conn.User, conn.Password, conn.Host, conn.Port, conn.Database, sslMode)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) ExecWithLog(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ql := logger.NewQueryLogger("exec", sql, args...)
	result, err := db.pool.Exec(ctx, sql, args...)
	ql.Log(err, result.RowsAffected())
	return result, err
}

func (db *DB) QueryRowWithLog(ctx context.Context, sql string, args ...any) pgx.Row {
	ql := logger.NewQueryLogger("query_row", sql, args...)
	row := db.pool.QueryRow(ctx, sql, args...)
	ql.Log(nil, 0)
	return row
}

// Ping checks both connection sets.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgxpool ping failed: %w", err)
	}
	if err := db.bunDB.PingContext(ctx); err != nil {
		return fmt.Errorf("bun ping failed: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
	if db.bunDB != nil {
		_ = db.bunDB.Close()
	}
}

// Tables lists the ledger models in creation order.
func Tables() []any {
	return []any{
		(*models.Goal)(nil),
		(*models.Beneficiary)(nil),
		(*models.Challenge)(nil),
		(*models.ChallengeParticipant)(nil),
		(*models.LedgerEvent)(nil),
	}
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_goals_owner ON goals(owner, id);",
	"CREATE INDEX IF NOT EXISTS idx_goals_open_deadline ON goals(deadline) WHERE completed = false AND forfeited = false;",
	"CREATE INDEX IF NOT EXISTS idx_challenges_start_time ON challenges(start_time);",
	"CREATE INDEX IF NOT EXISTS idx_challenges_unresolved ON challenges(deadline) WHERE resolved = false;",
	"CREATE INDEX IF NOT EXISTS idx_challenge_participants_user ON challenge_participants(user_id, challenge_id);",
	"CREATE INDEX IF NOT EXISTS idx_challenge_participants_seq ON challenge_participants(challenge_id, seq);",
	"CREATE INDEX IF NOT EXISTS idx_ledger_events_goal ON ledger_events(goal_id) WHERE goal_id IS NOT NULL;",
	"CREATE INDEX IF NOT EXISTS idx_ledger_events_challenge ON ledger_events(challenge_id) WHERE challenge_id IS NOT NULL;",
}

// InitializeSchema creates the ledger tables and indexes. It is idempotent.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if os.Getenv("DB_FAST_INIT") == "1" {
		if err := db.ensureAppMeta(ctx); err == nil {
			if v, _ := db.appMeta(ctx, "schema_version"); v == strconv.Itoa(schemaVersion) {
				slog.Info("Fast DB init: schema up-to-date, skipping initialization",
					slog.String("type", "db"),
					slog.Int("schema_version", schemaVersion))
				return nil
			}
		}
	}

	for _, model := range Tables() {
		if _, err := db.bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, idx := range indexes {
		if _, err := db.ExecWithLog(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := db.ensureAppMeta(ctx); err != nil {
		return fmt.Errorf("failed to create app_meta: %w", err)
	}
	if err := db.setAppMeta(ctx, "schema_version", strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// ResetLedger truncates every ledger table. Used by `migrate --reset` on development databases.
func (db *DB) ResetLedger(ctx context.Context) error {
	_, err := db.ExecWithLog(ctx,
		"TRUNCATE TABLE ledger_events, challenge_participants, challenges, beneficiaries, goals RESTART IDENTITY CASCADE;")
	if err != nil {
		return fmt.Errorf("failed to reset ledger tables: %w", err)
	}
	return nil
}

func (db *DB) ensureAppMeta(ctx context.Context) error {
	_, err := db.ExecWithLog(ctx, `CREATE TABLE IF NOT EXISTS app_meta (key TEXT PRIMARY KEY, value TEXT)`)
	return err
}

func (db *DB) appMeta(ctx context.Context, key string) (string, error) {
	var v string
	if err := db.QueryRowWithLog(ctx, `SELECT value FROM app_meta WHERE key = $1`, key).Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

func (db *DB) setAppMeta(ctx context.Context, key, value string) error {
	_, err := db.ExecWithLog(ctx, `INSERT INTO app_meta(key, value) VALUES($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}
