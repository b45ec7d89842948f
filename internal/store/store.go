// Package store persists a grading session: its configuration, roster,
// graded exams and capture images.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pavelanni/omrgrade/internal/model"

	_ "modernc.org/sqlite"
)

// Session directory layout.
const (
	DBFile      = "session.eyedb"
	CapturesDir = "captures"
	InternalDir = "internal"
)

var sqliteMagic = []byte("SQLite format 3\x00")

var (
	ErrNoSessionDB         = errors.New("no session database")
	ErrCorruptSessionDir   = errors.New("corrupt session directory")
	ErrSessionInvalid      = errors.New("invalid session database")
	ErrIncompatibleSchema  = errors.New("incompatible session schema")
	ErrUnsupportedBySchema = errors.New("not supported by the session schema")
	ErrExamNotFound        = errors.New("exam not found")
	ErrSessionExists       = errors.New("session directory is not empty")
)

// IncompatibleSchemaError reports a schema version this build cannot read.
type IncompatibleSchemaError struct {
	Found, Min, Max int
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("session schema version %d not in supported range %d..%d", e.Found, e.Min, e.Max)
}

func (e *IncompatibleSchemaError) Is(target error) bool {
	return target == ErrIncompatibleSchema
}

// Store is an open grading session. It is not safe for concurrent use.
type Store struct {
	db     *sql.DB
	dir    string
	schema schema
	config model.ExamConfig
	// roster snapshot, refreshed on every student insert
	byStudentID map[string]*model.Student
	byDBID      map[int64]*model.Student
}

// Open opens an existing session given its directory or its database file.
func Open(path string) (*Store, error) {
	dir, dbPath := sessionPaths(path)
	if err := checkSessionDir(dir, dbPath); err != nil {
		return nil, err
	}
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, dir: dir}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("opened session", "dir", dir, "schema", s.schema.version(), "models", len(s.config.Models))
	return s, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer; also keeps per-connection pragmas consistent
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrSessionInvalid, err)
	}
	return db, nil
}

func (s *Store) load() error {
	version, err := detectVersion(s.db)
	if err != nil {
		return err
	}
	sc, err := schemaFor(version)
	if err != nil {
		return err
	}
	s.schema = sc
	cfg, err := sc.loadConfig(s.db)
	if err != nil {
		return err
	}
	s.config = cfg
	return s.loadStudents()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the session directory.
func (s *Store) Dir() string {
	return s.dir
}

// ExamConfig returns the session configuration. The returned value shares
// model keys with the store and must not be modified.
func (s *Store) ExamConfig() *model.ExamConfig {
	return &s.config
}

// SchemaVersion returns the schema version of the session database.
func (s *Store) SchemaVersion() int {
	return s.schema.version()
}

func sessionPaths(path string) (dir, dbPath string) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path, filepath.Join(path, DBFile)
	}
	return filepath.Dir(path), path
}

func checkSessionDir(dir, dbPath string) error {
	f, err := os.Open(dbPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoSessionDB, dbPath)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoSessionDB, err)
	}
	header := make([]byte, len(sqliteMagic))
	_, err = io.ReadFull(f, header)
	f.Close()
	if err != nil || !bytes.Equal(header, sqliteMagic) {
		return fmt.Errorf("%w: %s is not an SQLite database", ErrSessionInvalid, dbPath)
	}
	for _, sub := range []string{CapturesDir, InternalDir} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: missing %s/", ErrCorruptSessionDir, sub)
		}
	}
	return nil
}

// Create lays out a new session in dir, which must be missing or empty, and
// opens it. Every group gets the next free group id; its students are
// numbered in list order.
func Create(dir string, cfg *model.ExamConfig, groups []model.StudentGroup) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read session directory: %w", err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, dir)
	}
	for _, sub := range []string{CapturesDir, InternalDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}
	db, err := openDB(filepath.Join(dir, DBFile))
	if err != nil {
		return nil, err
	}
	if err := initSession(db, cfg, groups); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	s := &Store{db: db, dir: dir}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("created session", "dir", dir, "models", len(cfg.Models), "groups", len(groups))
	return s, nil
}

func initSession(db *sql.DB, cfg *model.ExamConfig, groups []model.StudentGroup) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range currentDDL {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if err := saveConfig(tx, cfg); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO StudentGroups (group_id, group_name) VALUES (?, ?)`,
		model.DefaultGroupID, model.DefaultGroupName); err != nil {
		return err
	}
	sc := schemaV3{}
	for _, g := range groups {
		res, err := tx.Exec(`INSERT INTO StudentGroups (group_name) VALUES (?)`, g.Name)
		if err != nil {
			return err
		}
		groupID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for i, st := range g.Students {
			st.GroupID = groupID
			st.SequenceNum = i
			if err := sc.insertStudent(tx, &st); err != nil {
				return fmt.Errorf("group %q: %w", g.Name, err)
			}
		}
	}
	return tx.Commit()
}

func validateConfig(cfg *model.ExamConfig) error {
	if len(cfg.Dimensions) == 0 {
		return fmt.Errorf("%w: no answer tables", ErrSessionInvalid)
	}
	for sym := range cfg.Models {
		if !sym.Valid() || sym == model.Unknown {
			return fmt.Errorf("%w: model %q", model.ErrInvalidModel, sym)
		}
	}
	return checkKeys(cfg)
}
