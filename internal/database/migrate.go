package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// racha台帳(events, participants, expenses, expense_shares, payments)とsessionsのDDL。
//
//go:embed migrations/*.sql
var rachaMigrations embed.FS

// ErrDirtySchema はschema_migrationsがdirtyのまま残っていることを表す。
// 途中で失敗したマイグレーションを手で直すまで、台帳スキーマには触れない。
var ErrDirtySchema = errors.New("racha schema is dirty")

// NewMigrator は埋め込みのracha用マイグレーションを読むmigrateインスタンスを返す。
// 呼び出し側でCloseすること。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(rachaMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load racha migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションを適用する。適用済みなら何もしない。
// dirtyなスキーマにはUpを実行せずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if version, dirty, err := m.Version(); err == nil && dirty {
		return fmt.Errorf("%w: version %d", ErrDirtySchema, version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate racha schema: %w", err)
	}
	return nil
}

// SchemaVersion は適用済みの最新マイグレーション番号を返す。未適用なら0。
func SchemaVersion(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read racha schema version: %w", err)
	case dirty:
		return version, fmt.Errorf("%w: version %d", ErrDirtySchema, version)
	}
	return version, nil
}
