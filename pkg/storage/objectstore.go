package storage

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"aula/pkg/errors"
	"aula/pkg/models"
)

// Schema versions are additive only: existing collections and columns
// are never altered or dropped, so older on-device databases stay
// readable after an upgrade.
const schemaVersion = 2

// ObjectStore is the on-device persistent store holding the notes and
// audio collections (plus the recordings mirror cache since schema v2).
// Init must be called before any other operation.
type ObjectStore struct {
	path  string
	mutex sync.RWMutex
	db    *sql.DB
}

// NewObjectStore creates a store bound to a database file path. No I/O
// happens until Init.
func NewObjectStore(path string) *ObjectStore {
	return &ObjectStore{path: path}
}

// Init opens the database, creating and upgrading the schema as needed
func (s *ObjectStore) Init() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.ErrStorageUnavailable.WithInternal(err).WithContext("path", s.path)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.ErrStorageUnavailable.WithInternal(err).WithContext("path", s.path)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY from the connection pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return errors.ErrStorageUnavailable.WithInternal(err).WithContext("path", s.path)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return errors.ErrStorageUnavailable.WithInternal(err).WithContext("path", s.path)
	}

	s.db = db
	log.Printf("Object store opened: %s (schema v%d)", s.path, schemaVersion)
	return nil
}

// migrate applies additive schema upgrades up to schemaVersion
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS notes (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				class_name TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				professor_name TEXT NOT NULL DEFAULT '',
				professor_phone TEXT NOT NULL DEFAULT '',
				professor_email TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT 'general',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				has_audio INTEGER NOT NULL DEFAULT 0,
				audio_id TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_class_name ON notes(class_name)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_category ON notes(category)`,
			`CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at)`,
			`CREATE TABLE IF NOT EXISTS audio (
				id TEXT PRIMARY KEY,
				blob BLOB NOT NULL,
				mime_type TEXT NOT NULL DEFAULT '',
				timestamp INTEGER NOT NULL
			)`,
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return err
			}
		}
	}

	if version < 2 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS recordings (
				id TEXT PRIMARY KEY,
				date INTEGER NOT NULL,
				doc TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_recordings_date ON recordings(date)`,
		}
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return err
			}
		}
	}

	if version < schemaVersion {
		if _, err := db.Exec("PRAGMA user_version = 2"); err != nil {
			return err
		}
	}

	return nil
}

// ready fails fast before any I/O when the store is not initialized
func (s *ObjectStore) ready() (*sql.DB, error) {
	s.mutex.RLock()
	db := s.db
	s.mutex.RUnlock()

	if db == nil {
		return nil, errors.ErrNotInitialized
	}
	return db, nil
}

// PutNote upserts a note by primary key
func (s *ObjectStore) PutNote(note *models.Note) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT INTO notes
		(id, title, class_name, content, professor_name, professor_phone, professor_email,
		 category, created_at, updated_at, has_audio, audio_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			class_name = excluded.class_name,
			content = excluded.content,
			professor_name = excluded.professor_name,
			professor_phone = excluded.professor_phone,
			professor_email = excluded.professor_email,
			category = excluded.category,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			has_audio = excluded.has_audio,
			audio_id = excluded.audio_id`,
		note.ID, note.Title, note.ClassName, note.Content,
		note.Professor.Name, note.Professor.Phone, note.Professor.Email,
		string(note.Category), note.CreatedAt, note.UpdatedAt,
		boolToInt(note.HasAudio), note.AudioID)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "NOTE_WRITE_FAILED", "failed to write note").
			WithContext("noteId", note.ID)
	}
	return nil
}

// GetNote returns the note or (nil, false) when absent; absence is not
// an error
func (s *ObjectStore) GetNote(id string) (*models.Note, bool, error) {
	db, err := s.ready()
	if err != nil {
		return nil, false, err
	}

	row := db.QueryRow(noteColumns+" WHERE id = ?", id)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrTypeStorage, "NOTE_READ_FAILED", "failed to read note").
			WithContext("noteId", id)
	}
	return note, true, nil
}

// GetAllNotes returns every note sorted descending by creation time.
// The ordering is part of the store contract; recent-notes views rely
// on it.
func (s *ObjectStore) GetAllNotes() ([]*models.Note, error) {
	return s.queryNotes(noteColumns + " ORDER BY created_at DESC")
}

// GetNotesByClass returns notes for a class via the class_name index,
// most recent first
func (s *ObjectStore) GetNotesByClass(className string) ([]*models.Note, error) {
	return s.queryNotes(noteColumns+" WHERE class_name = ? ORDER BY created_at DESC", className)
}

// GetNotesByCategory returns notes in a category via the category
// index, most recent first
func (s *ObjectStore) GetNotesByCategory(category models.Category) ([]*models.Note, error) {
	return s.queryNotes(noteColumns+" WHERE category = ? ORDER BY created_at DESC", string(category))
}

const noteColumns = `SELECT id, title, class_name, content, professor_name, professor_phone,
	professor_email, category, created_at, updated_at, has_audio, audio_id FROM notes`

func (s *ObjectStore) queryNotes(query string, args ...interface{}) ([]*models.Note, error) {
	db, err := s.ready()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "NOTE_READ_FAILED", "failed to query notes")
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "NOTE_READ_FAILED", "failed to scan note")
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "NOTE_READ_FAILED", "failed to iterate notes")
	}
	return notes, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	var note models.Note
	var category string
	var hasAudio int
	err := row.Scan(&note.ID, &note.Title, &note.ClassName, &note.Content,
		&note.Professor.Name, &note.Professor.Phone, &note.Professor.Email,
		&category, &note.CreatedAt, &note.UpdatedAt, &hasAudio, &note.AudioID)
	if err != nil {
		return nil, err
	}
	note.Category = models.Category(category)
	note.HasAudio = hasAudio != 0
	return &note, nil
}

// DeleteNote removes a note by key; deleting a non-existent key is not
// an error
func (s *ObjectStore) DeleteNote(id string) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	if _, err := db.Exec("DELETE FROM notes WHERE id = ?", id); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "NOTE_DELETE_FAILED", "failed to delete note").
			WithContext("noteId", id)
	}
	return nil
}

// PutAudio upserts an audio record by primary key
func (s *ObjectStore) PutAudio(rec *models.AudioRecord) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT INTO audio (id, blob, mime_type, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			blob = excluded.blob,
			mime_type = excluded.mime_type,
			timestamp = excluded.timestamp`,
		rec.ID, rec.Blob, rec.MimeType, rec.Timestamp)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "AUDIO_WRITE_FAILED", "failed to write audio record").
			WithContext("audioId", rec.ID)
	}
	return nil
}

// GetAudio returns the audio record or (nil, false) when absent
func (s *ObjectStore) GetAudio(id string) (*models.AudioRecord, bool, error) {
	db, err := s.ready()
	if err != nil {
		return nil, false, err
	}

	var rec models.AudioRecord
	row := db.QueryRow("SELECT id, blob, mime_type, timestamp FROM audio WHERE id = ?", id)
	err = row.Scan(&rec.ID, &rec.Blob, &rec.MimeType, &rec.Timestamp)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrTypeStorage, "AUDIO_READ_FAILED", "failed to read audio record").
			WithContext("audioId", id)
	}
	return &rec, true, nil
}

// DeleteAudio removes an audio record by key; idempotent
func (s *ObjectStore) DeleteAudio(id string) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	if _, err := db.Exec("DELETE FROM audio WHERE id = ?", id); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "AUDIO_DELETE_FAILED", "failed to delete audio record").
			WithContext("audioId", id)
	}
	return nil
}

// PutRecording upserts a mirrored recording by primary key
func (s *ObjectStore) PutRecording(rec *models.Recording) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to encode recording").
			WithContext("recordingId", rec.ID)
	}

	_, err = db.Exec(`INSERT INTO recordings (id, date, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, doc = excluded.doc`,
		rec.ID, rec.Date, string(doc))
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to write recording").
			WithContext("recordingId", rec.ID)
	}
	return nil
}

// GetAllRecordings returns every mirrored recording, most recent first
func (s *ObjectStore) GetAllRecordings() ([]*models.Recording, error) {
	db, err := s.ready()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT doc FROM recordings ORDER BY date DESC")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_READ_FAILED", "failed to query recordings")
	}
	defer rows.Close()

	var recordings []*models.Recording
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_READ_FAILED", "failed to scan recording")
		}
		var rec models.Recording
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			log.Printf("Skipping undecodable recording row: %v", err)
			continue
		}
		recordings = append(recordings, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_READ_FAILED", "failed to iterate recordings")
	}
	return recordings, nil
}

// ReplaceRecordings overwrites the recordings collection wholesale,
// used when a successful remote fetch wins over the local mirror
func (s *ObjectStore) ReplaceRecordings(recordings []*models.Recording) error {
	db, err := s.ready()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM recordings"); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to clear recordings")
	}
	for _, rec := range recordings {
		doc, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to encode recording").
				WithContext("recordingId", rec.ID)
		}
		if _, err := tx.Exec("INSERT INTO recordings (id, date, doc) VALUES (?, ?, ?)",
			rec.ID, rec.Date, string(doc)); err != nil {
			return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to write recording").
				WithContext("recordingId", rec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "RECORDING_WRITE_FAILED", "failed to commit recordings")
	}
	return nil
}

// Close closes the underlying database. Operations after Close fail
// with the not-initialized error.
func (s *ObjectStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
