// Package store implements the Game State Store: a single-writer sqlite
// database of players, games and emotes.
//
// Adapted from the teacher's db/db.go: a split read/write *sql.DB pair
// (the write handle capped to one open connection), a PRAGMA list run
// at open, and every query/command loaded from an embedded *.sql
// directory and kept in a name-indexed map of prepared statements.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/*.sql
var sqlDir embed.FS

// Store is the sole owner of the sqlite connection pair. Only the
// arbiter calls its methods (its loop, plus the reap sweeps its
// maintenance tick runs concurrently); it provides no locking of its
// own beyond what database/sql does, matching spec.md §4.C's "guaranteed by the single-writer arbiter"
// note.
type Store struct {
	read  *sql.DB
	write *sql.DB

	queries  map[string]*sql.Stmt
	commands map[string]*sql.Stmt

	log *log.Logger
	dbg *log.Logger
}

// Open creates (if needed) and migrates the sqlite file at path,
// returning a ready Store. A failure here is fatal per spec.md §7.6:
// the caller is expected to abort startup.
func Open(path_ string, logger, debug *log.Logger) (*Store, error) {
	read, err := sql.Open("sqlite3", path_)
	if err != nil {
		return nil, fmt.Errorf("open read handle: %w", err)
	}
	read.SetConnMaxLifetime(0)
	read.SetMaxIdleConns(1)

	write, err := sql.Open("sqlite3", path_)
	if err != nil {
		return nil, fmt.Errorf("open write handle: %w", err)
	}
	write.SetConnMaxLifetime(0)
	write.SetMaxIdleConns(1)
	write.SetMaxOpenConns(1)

	s := &Store{
		read:     read,
		write:    write,
		queries:  make(map[string]*sql.Stmt),
		commands: make(map[string]*sql.Stmt),
		log:      logger,
		dbg:      debug,
	}

	for _, pragma := range []string{
		// https://www.sqlite.org/pragma.html#pragma_journal_mode
		"journal_mode = WAL",
		// https://www.sqlite.org/pragma.html#pragma_synchronous
		"synchronous = normal",
		// https://www.sqlite.org/pragma.html#pragma_temp_store
		"temp_store = memory",
		// https://www.sqlite.org/pragma.html#pragma_foreign_keys
		"foreign_keys = on",
	} {
		s.dbg.Printf("running PRAGMA %s", pragma)
		if _, err := s.write.Exec("PRAGMA " + pragma + ";"); err != nil {
			return nil, fmt.Errorf("PRAGMA %s: %w", pragma, err)
		}
	}

	if err := s.loadStatements(); err != nil {
		return nil, err
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// loadStatements reads every embedded *.sql file: create-* scripts run
// first, then the phrase-column migration, and only then are select-*
// files prepared as read-side queries and everything else as write-side
// commands (statements naming phrase cannot be prepared before it exists).
func (s *Store) loadStatements() error {
	entries, err := sqlDir.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read embedded sql dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "create-") {
			continue
		}
		data, err := fs.ReadFile(sqlDir, path.Join("sql", entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.write.Exec(string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", entry.Name(), err)
		}
		s.dbg.Printf("executed schema statement %s", entry.Name())
	}
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		data, err := fs.ReadFile(sqlDir, path.Join("sql", entry.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		switch {
		case strings.HasPrefix(base, "create-"):
			// already executed above
		case strings.HasPrefix(base, "select-"):
			name := strings.TrimSuffix(base, ".sql")
			stmt, err := s.read.Prepare(string(data))
			if err != nil {
				return fmt.Errorf("prepare %s: %w", base, err)
			}
			s.queries[name] = stmt
			s.dbg.Printf("registered query %s", name)
		default:
			name := strings.TrimSuffix(base, ".sql")
			stmt, err := s.write.Prepare(string(data))
			if err != nil {
				return fmt.Errorf("prepare %s: %w", base, err)
			}
			s.commands[name] = stmt
			s.dbg.Printf("registered command %s", name)
		}
	}

	if len(s.queries) == 0 || len(s.commands) == 0 {
		return fmt.Errorf("no statements loaded")
	}
	return nil
}

// migrate performs the light schema check spec.md §4.C calls for: an
// older players table missing the phrase column gets it added.
func (s *Store) migrate() error {
	rows, err := s.write.Query(`PRAGMA table_info(players);`)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasPhrase := false
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == "phrase" {
			hasPhrase = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !hasPhrase {
		s.log.Println("migrating players table: adding phrase column")
		if _, err := s.write.Exec(`ALTER TABLE players ADD COLUMN phrase TEXT;`); err != nil {
			return fmt.Errorf("add phrase column: %w", err)
		}
	}
	return nil
}

// String satisfies conf.Manager.
func (s *Store) String() string { return "Game State Store" }

// Start satisfies conf.Manager; the store has no background activity of
// its own, all of its work happens synchronously on arbiter calls.
func (s *Store) Start() {}

// Shutdown closes both connections.
func (s *Store) Shutdown() {
	if _, err := s.write.Exec("PRAGMA optimize;"); err != nil {
		s.log.Printf("PRAGMA optimize: %v", err)
	}
	if err := s.write.Close(); err != nil {
		s.log.Printf("closing write handle: %v", err)
	}
	if err := s.read.Close(); err != nil {
		s.log.Printf("closing read handle: %v", err)
	}
}
