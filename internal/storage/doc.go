// Package storage persists project notes in SQLite.
//
// Notes are short observations recorded by the assistant while working on
// a project (design decisions, bug causes, refactoring plans). They are
// keyed by project root and survive server restarts.
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migration versions
//   - notes: note content, project root and creation time
//   - note_tags: tags attached to a note, in the order given
//
// Migrations are ordered by semantic version and applied on open; each one
// runs in its own transaction.
//
// # Drivers
//
// The default build uses the pure Go driver (modernc.org/sqlite). Building
// with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.gosight/notes.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	note := &storage.Note{ProjectRoot: root, Content: "Cache is keyed by abs path", Tags: []string{"cache"}}
//	if err := store.AddNote(ctx, note); err != nil {
//	    return err
//	}
//
//	found, err := store.SearchNotes(ctx, root, "CACHE", 10)
package storage
