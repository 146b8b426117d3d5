package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"libris.org/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Manager applies SQL migration and seed files from disk. Each file runs in
// its own transaction and is recorded by name, so reruns are no-ops.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewManager constructs a Manager over an open connection pool.
func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
	}
}

// Up applies every pending *.up.sql migration in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	pending, err := m.pending(ctx, migrationsTable, m.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, script := range pending {
		if err := m.apply(ctx, migrationsTable, script); err != nil {
			return fmt.Errorf("apply migration %s: %w", script.name, err)
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its *.down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.history(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downPath := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	return err
}

// Seed applies pending seed files. Seeds are tracked separately from schema
// migrations so a fresh environment can run both while production runs only Up.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	pending, err := m.pending(ctx, seedsTable, m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, script := range pending {
		if err := m.apply(ctx, seedsTable, script); err != nil {
			return fmt.Errorf("apply seed %s: %w", script.name, err)
		}
	}
	return nil
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx, migrationsTable)
}

type script struct {
	name string
	path string
}

func (m *Manager) pending(ctx context.Context, table, dir, suffix string) ([]script, error) {
	applied, err := m.appliedSet(ctx, table)
	if err != nil {
		return nil, err
	}
	all, err := collectScripts(dir, suffix)
	if err != nil {
		return nil, err
	}
	var res []script
	for _, s := range all {
		if !applied[s.name] {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *Manager) apply(ctx context.Context, table string, s script) error {
	if err := m.execFile(ctx, s.path); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		s.name, time.Now().UTC()); err != nil {
		return err
	}
	obs.LogRequest(map[string]any{
		"level": "info",
		"msg":   "migration applied",
		"name":  s.name,
	})
	return nil
}

// execFile runs every statement of one SQL file inside a single transaction.
func (m *Manager) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			);`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := m.history(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, nil
}

func (m *Manager) history(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func collectScripts(dir, suffix string) ([]script, error) {
	if dir == "" {
		return nil, nil
	}
	var files []script
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, script{name: d.Name(), path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

// splitStatements breaks a SQL file into statements on semicolons, skipping
// ones inside single-quoted strings, dollar-quoted blocks and line comments.
func splitStatements(input string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
		inDollar bool
	)
	lines := strings.Split(input, "\n")
	for li, line := range lines {
		if !inString && !inDollar && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, r := range line {
			current.WriteRune(r)
			switch r {
			case '\'':
				if !inDollar {
					inString = !inString
				}
			case '$':
				if !inString && strings.HasSuffix(current.String(), "$$") {
					inDollar = !inDollar
				}
			case ';':
				if !inString && !inDollar {
					stmts = append(stmts, current.String())
					current.Reset()
				}
			}
		}
		if li < len(lines)-1 {
			current.WriteRune('\n')
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
