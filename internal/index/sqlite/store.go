package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"fsindex/internal/index/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Backend() string { return "sqlite" }

func (s *Store) Insert(entries []store.Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO files (path, name, dir, kind, size, mtime)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   name=excluded.name,
		   dir=excluded.dir,
		   kind=excluded.kind,
		   size=excluded.size,
		   mtime=excluded.mtime`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		path := filepath.Clean(strings.TrimSpace(e.Path))
		if path == "" || path == "." {
			return fmt.Errorf("path is required")
		}
		name := e.Name
		if name == "" {
			name = filepath.Base(path)
		}
		dir := e.Dir
		if dir == "" {
			dir = filepath.Dir(path)
		}
		kind := strings.TrimSpace(e.Kind)
		if kind == "" {
			kind = "file"
		}
		if _, err := stmt.Exec(path, name, dir, kind, e.Size, e.MTime); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) Delete(paths []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`DELETE FROM files WHERE path = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range paths {
		p = filepath.Clean(strings.TrimSpace(p))
		if p == "" || p == "." {
			continue
		}
		if _, err := stmt.Exec(p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) DeletePrefix(dir string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "" || dir == "." || dir == "/" {
		return 0, fmt.Errorf("prefix dir is required")
	}

	// substr comparison avoids LIKE/GLOB metacharacter escaping for
	// arbitrary directory names.
	prefix := dir + "/"
	res, err := s.db.Exec(
		`DELETE FROM files WHERE substr(path, 1, length(?)) = ?`,
		prefix, prefix,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Exists(path string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("store is not open")
	}
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return false, fmt.Errorf("path is required")
	}

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM files WHERE path = ? LIMIT 1`, path).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Search(q store.Query) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	keywords := strings.Fields(q.Keywords)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("keywords are required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var conds []string
	var args []any
	for _, kw := range keywords {
		if q.CaseInsensitive {
			// LIKE is case-insensitive for ASCII by default.
			conds = append(conds, `name LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(kw)+"%")
		} else {
			conds = append(conds, `instr(name, ?) > 0`)
			args = append(args, kw)
		}
	}
	if dir := cleanDir(q.Dir); dir != "" {
		prefix := dir + "/"
		conds = append(conds, `substr(path, 1, length(?)) = ?`)
		args = append(args, prefix, prefix)
	}

	query := `SELECT path FROM files WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY path LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Count() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM files`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) GetMeta(key string) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("store is not open")
	}
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) SetMeta(key string, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, _ = s.db.Exec("PRAGMA journal_mode = WAL")

	return execStatements(s.db, schemaSQL)
}

func cleanDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	dir = filepath.Clean(dir)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func execStatements(db *sql.DB, sqlText string) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sqlText = strings.ReplaceAll(sqlText, "\r\n", "\n")

	var cleaned strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if strings.HasPrefix(trim, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	parts := strings.Split(cleaned.String(), ";")
	for _, raw := range parts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
