package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyNote is returned when a note has no content
	ErrEmptyNote = errors.New("note content is empty")
	// ErrEmptyProject is returned when a note has no project root
	ErrEmptyProject = errors.New("project root is empty")
)

// SQLiteStorage implements the Store interface using SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the notes database at dbPath
// and brings its schema up to date
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// AddNote stores note with its tags in one transaction
func (s *SQLiteStorage) AddNote(ctx context.Context, note *Note) error {
	content := strings.TrimSpace(note.Content)
	if content == "" {
		return ErrEmptyNote
	}
	if note.ProjectRoot == "" {
		return ErrEmptyProject
	}

	tags := normalizeTags(note.Tags)
	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO notes (project_root, content, created_at) VALUES (?, ?, ?)`,
			note.ProjectRoot, content, createdAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}

		for i, tag := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO note_tags (note_id, position, tag) VALUES (?, ?, ?)`,
				id, i, tag); err != nil {
				return fmt.Errorf("failed to insert tag: %w", err)
			}
		}
		note.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	note.Content = content
	note.Tags = tags
	note.CreatedAt = time.Unix(0, createdAt.UnixNano())
	return nil
}

// SearchNotes matches query against content and tags without regard to
// ASCII case
func (s *SQLiteStorage) SearchNotes(ctx context.Context, projectRoot, query string, limit int) ([]*Note, error) {
	q := `
		SELECT id, project_root, content, created_at
		FROM notes n
		WHERE project_root = ?
		  AND (instr(lower(content), lower(?)) > 0
		       OR EXISTS (SELECT 1 FROM note_tags t
		                  WHERE t.note_id = n.id AND instr(lower(t.tag), lower(?)) > 0))
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return s.queryNotes(ctx, q, projectRoot, query, query, sqlLimit(limit))
}

// ListNotes returns the project's notes, newest first
func (s *SQLiteStorage) ListNotes(ctx context.Context, projectRoot string, limit int) ([]*Note, error) {
	q := `
		SELECT id, project_root, content, created_at
		FROM notes
		WHERE project_root = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return s.queryNotes(ctx, q, projectRoot, sqlLimit(limit))
}

// CountNotes returns the number of notes stored for the project
func (s *SQLiteStorage) CountNotes(ctx context.Context, projectRoot string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE project_root = ?`, projectRoot).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return n, nil
}

// sqlLimit maps "no limit" to SQLite's -1
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *SQLiteStorage) queryNotes(ctx context.Context, query string, args ...interface{}) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}

	notes := make([]*Note, 0)
	byID := make(map[int64]*Note)
	for rows.Next() {
		var note Note
		var createdAt int64
		if err := rows.Scan(&note.ID, &note.ProjectRoot, &note.Content, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		note.CreatedAt = time.Unix(0, createdAt)
		note.Tags = []string{}
		notes = append(notes, &note)
		byID[note.ID] = &note
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Release the single connection before loading tags
	_ = rows.Close()

	if err := s.loadTags(ctx, byID); err != nil {
		return nil, err
	}
	return notes, nil
}

// loadTags fills in the tags of the given notes with one query
func (s *SQLiteStorage) loadTags(ctx context.Context, byID map[int64]*Note) error {
	if len(byID) == 0 {
		return nil
	}

	ids := make([]interface{}, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT note_id, tag FROM note_tags WHERE note_id IN (`+placeholders+`) ORDER BY note_id, position`,
		ids...)
	if err != nil {
		return fmt.Errorf("failed to query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		if note, ok := byID[id]; ok {
			note.Tags = append(note.Tags, tag)
		}
	}
	return rows.Err()
}
