package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists settings in the system_settings table.
// Secret values are stored encrypted in value_enc.
type PostgresStore struct {
	db     *pgxpool.Pool
	cipher *Cipher
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore with a pgx connection pool.
func NewPostgresStore(ctx context.Context, dsn string, c *Cipher, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{db: pool, cipher: c, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Load returns every stored setting with secrets decrypted.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value, value_enc FROM system_settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var key, value string
		var enc []byte
		if err := rows.Scan(&key, &value, &enc); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if len(enc) > 0 {
			value, err = s.cipher.Decrypt(enc)
			if err != nil {
				return nil, fmt.Errorf("decrypt %s: %w", key, err)
			}
		}
		snap[key] = value
	}
	return snap, rows.Err()
}

// Save upserts values in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, values map[string]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, key := range sortedKeys(values) {
		value := values[key]
		var enc []byte
		if IsSecret(key) && value != "" {
			enc, err = s.cipher.Encrypt(value)
			if err != nil {
				return fmt.Errorf("encrypt %s: %w", key, err)
			}
			value = ""
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO system_settings (key, value, value_enc, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (key) DO UPDATE
			 SET value = EXCLUDED.value, value_enc = EXCLUDED.value_enc, updated_at = NOW()`,
			key, value, enc,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}
