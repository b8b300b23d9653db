package services

import (
	"log"
	"strings"
	"sync"

	"aula/pkg/errors"
	"aula/pkg/models"
	"aula/pkg/storage"
	"aula/pkg/utils"
)

// NoteService owns the authoritative in-memory view of notes for the
// running session, synchronized with the object store. The in-memory
// list is kept in most-recent-first order; existence checks during a
// session go against the cache, not the store.
//
// Mutations on the same note ID are last-write-wins when overlapped;
// callers are expected not to fire concurrent mutations for one note.
type NoteService struct {
	store *storage.ObjectStore

	mutex sync.RWMutex
	notes []*models.Note // sorted descending by CreatedAt
	byID  map[string]*models.Note
}

// NewNoteService creates a new note service
func NewNoteService(store *storage.ObjectStore) *NoteService {
	return &NoteService{
		store: store,
		byID:  make(map[string]*models.Note),
	}
}

// LoadNotes replaces the in-memory cache with the full, sorted contents
// of the store. Call after the store is initialized, and again whenever
// an out-of-process mutation may have happened.
func (s *NoteService) LoadNotes() error {
	notes, err := s.store.GetAllNotes()
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.notes = notes
	s.byID = make(map[string]*models.Note, len(notes))
	for _, note := range notes {
		s.byID[note.ID] = note
	}
	s.mutex.Unlock()

	log.Printf("Loaded %d notes from store", len(notes))
	return nil
}

// CreateNote validates, persists and front-inserts a new note. The
// front insert preserves the most-recent-first invariant without a
// full reload.
func (s *NoteService) CreateNote(title, className string, professor models.Professor, content string, category models.Category) (*models.Note, error) {
	validator := errors.NewValidator()
	if result := validator.ValidateNoteFields(title, className, professor.Name); !result.IsValid {
		err := result.GetFirstError()
		err.Log()
		return nil, err
	}
	if result := validator.ValidateNoteContent(content); !result.IsValid {
		err := result.GetFirstError()
		err.Log()
		return nil, err
	}

	if category == "" {
		category = models.CategoryGeneral
	}
	if !category.IsValid() {
		err := errors.ErrInvalidCategory.WithContext("category", string(category))
		err.Log()
		return nil, err
	}

	now := utils.NowMillis()
	note := &models.Note{
		ID:        utils.GenerateNoteID(),
		Title:     strings.TrimSpace(title),
		ClassName: strings.TrimSpace(className),
		Content:   content,
		Professor: professor,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.PutNote(note); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	s.notes = append([]*models.Note{note}, s.notes...)
	s.byID[note.ID] = note
	s.mutex.Unlock()

	log.Printf("Note created: %s (%s)", note.ID, note.Title)
	return note, nil
}

// UpdateNote merges a partial update into an existing note, always
// refreshing UpdatedAt. The in-memory cache is the source of truth for
// existence; a note absent from it is not looked up in storage. The
// merge is built on a copy and only replaces the cached note after the
// store accepted it, so a failed persist leaves the cache unchanged.
func (s *NoteService) UpdateNote(id string, update models.NoteUpdate) (*models.Note, error) {
	validator := errors.NewValidator()
	if result := validator.ValidateNoteID(id); !result.IsValid {
		err := result.GetFirstError()
		err.Log()
		return nil, err
	}
	if update.Content != nil {
		if result := validator.ValidateNoteContent(*update.Content); !result.IsValid {
			err := result.GetFirstError()
			err.Log()
			return nil, err
		}
	}
	if update.Category != nil && !update.Category.IsValid() {
		err := errors.ErrInvalidCategory.WithContext("category", string(*update.Category))
		err.Log()
		return nil, err
	}

	s.mutex.RLock()
	note, exists := s.byID[id]
	var merged models.Note
	if exists {
		merged = *note
	}
	s.mutex.RUnlock()
	if !exists {
		return nil, errors.ErrNoteNotFound.WithContext("noteId", id)
	}

	if update.Title != nil {
		merged.Title = *update.Title
	}
	if update.ClassName != nil {
		merged.ClassName = *update.ClassName
	}
	if update.Content != nil {
		merged.Content = *update.Content
	}
	if update.Professor != nil {
		merged.Professor = *update.Professor
	}
	if update.Category != nil {
		merged.Category = *update.Category
	}
	if update.HasAudio != nil {
		merged.HasAudio = *update.HasAudio
	}
	if update.AudioID != nil {
		merged.AudioID = *update.AudioID
	}
	merged.UpdatedAt = utils.NowMillis()

	if err := s.store.PutNote(&merged); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	if cached, ok := s.byID[id]; ok {
		*cached = merged
	}
	s.mutex.Unlock()

	log.Printf("Note updated: %s", id)
	return &merged, nil
}

// DeleteNote removes a note and cascades to its audio record. The
// cascade is best effort: a failed audio deletion is logged, never
// rolled back, since a stranded blob is less harmful than a note that
// cannot be deleted. Deleting an unknown ID is not an error.
func (s *NoteService) DeleteNote(id string) error {
	s.mutex.Lock()
	note, exists := s.byID[id]
	var hasAudio bool
	var audioID string
	if exists {
		hasAudio = note.HasAudio
		audioID = note.AudioID
	}
	s.mutex.Unlock()

	if err := s.store.DeleteNote(id); err != nil {
		return err
	}

	if exists && hasAudio && audioID != "" {
		if err := s.store.DeleteAudio(audioID); err != nil {
			log.Printf("Cascade delete of audio %s failed (note %s already deleted): %v", audioID, id, err)
		}
	}

	s.mutex.Lock()
	if _, ok := s.byID[id]; ok {
		delete(s.byID, id)
		for i, n := range s.notes {
			if n.ID == id {
				s.notes = append(s.notes[:i], s.notes[i+1:]...)
				break
			}
		}
	}
	s.mutex.Unlock()

	if exists {
		log.Printf("Note deleted: %s", id)
	}
	return nil
}

// GetNotes returns a snapshot of the cached notes, most recent first
func (s *NoteService) GetNotes() []*models.Note {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	notes := make([]*models.Note, len(s.notes))
	copy(notes, s.notes)
	return notes
}

// GetNote returns a cached note by ID
func (s *NoteService) GetNote(id string) (*models.Note, error) {
	s.mutex.RLock()
	note, exists := s.byID[id]
	s.mutex.RUnlock()

	if !exists {
		return nil, errors.ErrNoteNotFound.WithContext("noteId", id)
	}
	return note, nil
}

// GetNotesByClass returns cached notes for a class. No I/O.
func (s *NoteService) GetNotesByClass(className string) []*models.Note {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*models.Note
	for _, note := range s.notes {
		if note.ClassName == className {
			result = append(result, note)
		}
	}
	return result
}

// GetNotesByCategory returns cached notes in a category. No I/O.
func (s *NoteService) GetNotesByCategory(category models.Category) []*models.Note {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*models.Note
	for _, note := range s.notes {
		if note.Category == category {
			result = append(result, note)
		}
	}
	return result
}

// GetClasses returns the distinct class names present in the cache,
// in most-recent-first order of first appearance. No I/O.
func (s *NoteService) GetClasses() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seen := make(map[string]bool)
	var classes []string
	for _, note := range s.notes {
		if !seen[note.ClassName] {
			seen[note.ClassName] = true
			classes = append(classes, note.ClassName)
		}
	}
	return classes
}

// SearchNotes returns cached notes whose title, class or content
// contains the query, case-insensitive
func (s *NoteService) SearchNotes(query string) []*models.Note {
	query = strings.ToLower(query)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var results []*models.Note
	for _, note := range s.notes {
		if strings.Contains(strings.ToLower(note.Title), query) ||
			strings.Contains(strings.ToLower(note.ClassName), query) ||
			strings.Contains(strings.ToLower(note.Content), query) {
			results = append(results, note)
		}
	}
	return results
}

// AttachAudio persists a finished audio blob for a note and flips the
// note's audio flags. The audio record follows the "<noteId>_audio"
// ID convention.
func (s *NoteService) AttachAudio(noteID string, blob []byte, mimeType string) (*models.Note, error) {
	s.mutex.RLock()
	_, exists := s.byID[noteID]
	s.mutex.RUnlock()
	if !exists {
		return nil, errors.ErrNoteNotFound.WithContext("noteId", noteID)
	}

	audioID := utils.AudioIDFor(noteID)
	record := &models.AudioRecord{
		ID:        audioID,
		Blob:      blob,
		MimeType:  mimeType,
		Timestamp: utils.NowMillis(),
	}
	if err := s.store.PutAudio(record); err != nil {
		return nil, err
	}

	hasAudio := true
	return s.UpdateNote(noteID, models.NoteUpdate{HasAudio: &hasAudio, AudioID: &audioID})
}

// GetAudio fetches the audio record attached to a note
func (s *NoteService) GetAudio(noteID string) (*models.AudioRecord, error) {
	record, found, err := s.store.GetAudio(utils.AudioIDFor(noteID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.ErrNoteNotFound.WithContext("noteId", noteID)
	}
	return record, nil
}
