package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"go-best-shot/internal/resolver"
)

// SQLiteGroupRepository persists duplicate groups in a local SQLite file
type SQLiteGroupRepository struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteGroupRepository opens or creates the database at dbPath
func NewSQLiteGroupRepository(dbPath string) (*SQLiteGroupRepository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrRepositoryUnavailable, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	r := &SQLiteGroupRepository{db: db, dbPath: dbPath}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// migrations are applied in order on top of the base schema
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add run history",
		up: `
			CREATE TABLE IF NOT EXISTS resolution_runs (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL,
				mode TEXT NOT NULL,
				dry_run INTEGER NOT NULL,
				total_groups INTEGER NOT NULL,
				degraded_groups INTEGER NOT NULL,
				total_actions INTEGER NOT NULL
			);
		`,
	},
}

func (r *SQLiteGroupRepository) init() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS duplicate_groups (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES duplicate_groups(id) ON DELETE CASCADE,
		asset_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (group_id, asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_position ON group_members(group_id, position);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := r.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (r *SQLiteGroupRepository) migrate() error {
	current := r.schemaVersion()
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.up != "" {
			if _, err := r.db.Exec(m.up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
			}
		}
		if _, err := r.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (r *SQLiteGroupRepository) schemaVersion() int {
	var version int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0
	}
	return version
}

// Close closes the database connection
func (r *SQLiteGroupRepository) Close() error {
	return r.db.Close()
}

// SaveGroups implements GroupRepository. Re-importing a group replaces its
// members but keeps its place in the enumeration order.
func (r *SQLiteGroupRepository) SaveGroups(ctx context.Context, groups []resolver.DuplicateGroup) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertGroup, err := tx.PrepareContext(ctx, `INSERT INTO duplicate_groups (id) VALUES (?) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insertGroup.Close()

	insertMember, err := tx.PrepareContext(ctx, `INSERT INTO group_members (group_id, asset_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer insertMember.Close()

	for _, g := range groups {
		id := strings.TrimSpace(g.ID)
		if id == "" {
			return fmt.Errorf("group without id")
		}
		g = g.Normalize()

		if _, err := insertGroup.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to insert group %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id); err != nil {
			return fmt.Errorf("failed to reset members of %s: %w", id, err)
		}
		for pos, assetID := range g.AssetIDs {
			if _, err := insertMember.ExecContext(ctx, id, assetID, pos); err != nil {
				return fmt.Errorf("failed to insert member %s of %s: %w", assetID, id, err)
			}
		}
	}

	return tx.Commit()
}

// ListGroups implements resolver.GroupSource, in import order
func (r *SQLiteGroupRepository) ListGroups(ctx context.Context) ([]resolver.DuplicateGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, m.asset_id
		FROM duplicate_groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		ORDER BY g.seq, m.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []resolver.DuplicateGroup
	for rows.Next() {
		var groupID string
		var assetID sql.NullString
		if err := rows.Scan(&groupID, &assetID); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(groups) == 0 || groups[len(groups)-1].ID != groupID {
			groups = append(groups, resolver.DuplicateGroup{ID: groupID})
		}
		if assetID.Valid {
			last := &groups[len(groups)-1]
			last.AssetIDs = append(last.AssetIDs, assetID.String)
		}
	}
	return groups, rows.Err()
}

// GetGroup implements GroupRepository
func (r *SQLiteGroupRepository) GetGroup(ctx context.Context, id string) (resolver.DuplicateGroup, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM duplicate_groups WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return resolver.DuplicateGroup{}, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	if err != nil {
		return resolver.DuplicateGroup{}, fmt.Errorf("failed to query group: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT asset_id FROM group_members WHERE group_id = ? ORDER BY position`, id)
	if err != nil {
		return resolver.DuplicateGroup{}, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	group := resolver.DuplicateGroup{ID: id}
	for rows.Next() {
		var assetID string
		if err := rows.Scan(&assetID); err != nil {
			return resolver.DuplicateGroup{}, fmt.Errorf("failed to scan row: %w", err)
		}
		group.AssetIDs = append(group.AssetIDs, assetID)
	}
	return group, rows.Err()
}

// RecordRun implements GroupRepository
func (r *SQLiteGroupRepository) RecordRun(ctx context.Context, run RunRecord) error {
	dryRun := 0
	if run.DryRun {
		dryRun = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resolution_runs (id, started_at, finished_at, mode, dry_run, total_groups, degraded_groups, total_actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Mode, dryRun, run.Groups, run.Degraded, run.Actions)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RunCount returns the number of recorded runs
func (r *SQLiteGroupRepository) RunCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resolution_runs`).Scan(&count)
	return count, err
}
