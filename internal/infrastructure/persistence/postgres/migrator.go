// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"trading-bot-fleet/pkg/logger"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations - SQL-миграции схемы, встроенные в бинарник
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator управляет миграциями базы данных
type Migrator struct {
	db         *sqlx.DB
	migrations map[int]*Migration
}

// Migration представляет одну миграцию
type Migration struct {
	ID          int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

// MigrationStatus - состояние миграции относительно базы
type MigrationStatus struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// MigrationRecord - строка таблицы migrations
type MigrationRecord struct {
	ID        int          `db:"id"`
	Name      string       `db:"name"`
	AppliedAt sql.NullTime `db:"applied_at"`
	Checksum  string       `db:"checksum"`
}

// NewMigrator создает новый мигратор
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: make(map[int]*Migration),
	}
}

// Init создает таблицу миграций
func (m *Migrator) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		sql_content TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		checksum VARCHAR(64) NOT NULL
	);
	`

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Load загружает миграции вида 001_name.sql из fsys
func (m *Migrator) Load(fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	var names []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	for _, filename := range names {
		id, name, err := parseMigrationFilename(filename)
		if err != nil {
			return err
		}
		content, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, dup := m.migrations[id]; dup {
			return fmt.Errorf("duplicate migration ID %d (%s)", id, filename)
		}
		m.migrations[id] = &Migration{
			ID:          id,
			Name:        name,
			Description: extractDescription(string(content)),
			SQL:         string(content),
			Checksum:    calculateChecksum(content),
		}
		logger.Debug("📄 Loaded migration: %s", filename)
	}

	for id := 1; id <= len(m.migrations); id++ {
		if _, ok := m.migrations[id]; !ok {
			return fmt.Errorf("missing migration with ID %d", id)
		}
	}

	logger.Info("✅ Loaded %d migrations", len(m.migrations))
	return nil
}

// Status показывает статус миграций
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for id := 1; id <= len(m.migrations); id++ {
		migration := m.migrations[id]
		status := MigrationStatus{ID: id, Name: migration.Name, Status: "pending"}

		if record, ok := applied[id]; ok {
			status.Applied = true
			status.AppliedAt = record.AppliedAt.Time
			status.Status = "applied"
			if record.Checksum != migration.Checksum {
				status.Status = "checksum_mismatch"
				status.Message = fmt.Sprintf("expected %s, got %s", migration.Checksum, record.Checksum)
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Migrate применяет все непройденные миграции по порядку
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	logger.Info("🚀 Starting database migrations...")

	if err := m.Init(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	for id := 1; id <= len(m.migrations); id++ {
		migration := m.migrations[id]

		if record, ok := applied[id]; ok {
			if record.Checksum != migration.Checksum {
				return count, fmt.Errorf("checksum mismatch for migration %d: %s", id, migration.Name)
			}
			continue
		}

		if err := m.apply(ctx, migration); err != nil {
			return count, fmt.Errorf("failed to apply migration %d: %s: %w", id, migration.Name, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("✅ Applied %d new migrations", count)
	} else {
		logger.Info("✅ Database is up to date")
	}
	return count, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]MigrationRecord, error) {
	var records []MigrationRecord
	err := m.db.SelectContext(ctx, &records, `SELECT id, name, applied_at, checksum FROM migrations ORDER BY id`)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return map[int]MigrationRecord{}, nil
		}
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]MigrationRecord, len(records))
	for _, r := range records {
		applied[r.ID] = r
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, migration *Migration) error {
	logger.Info("📤 Applying migration: %s", migration.Name)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO migrations (id, name, description, sql_content, checksum)
	VALUES ($1, $2, $3, $4, $5)
	`, migration.ID, migration.Name, migration.Description, migration.SQL, migration.Checksum)
	if err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}

	return tx.Commit()
}

func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected: 001_name.sql)", filename)
	}

	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}
	return id, strings.ReplaceAll(parts[1], "_", " "), nil
}

func extractDescription(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return "No description"
}

func calculateChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
