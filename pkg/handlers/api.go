package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "aula/pkg/errors"
	"aula/pkg/gateway"
	"aula/pkg/models"
	"aula/pkg/services"
)

// APIHandlers contains API endpoint handlers
type APIHandlers struct {
	notes         *services.NoteService
	recordings    *services.RecordingService
	conversations *services.ConversationService
	gateway       *gateway.Gateway
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(notes *services.NoteService, recordings *services.RecordingService, conversations *services.ConversationService, gw *gateway.Gateway) *APIHandlers {
	return &APIHandlers{
		notes:         notes,
		recordings:    recordings,
		conversations: conversations,
		gateway:       gw,
	}
}

// Routes mounts all API endpoints on a router
func (h *APIHandlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.HealthHandler)

	r.Get("/notes", h.GetNotesHandler)
	r.Post("/notes", h.CreateNoteHandler)
	r.Get("/notes/{id}", h.GetNoteHandler)
	r.Put("/notes/{id}", h.UpdateNoteHandler)
	r.Delete("/notes/{id}", h.DeleteNoteHandler)
	r.Get("/notes/{id}/audio", h.GetAudioHandler)
	r.Post("/notes/{id}/audio", h.AttachAudioHandler)
	r.Get("/classes", h.GetClassesHandler)
	r.Get("/search", h.SearchHandler)

	r.Get("/recordings", h.GetRecordingsHandler)
	r.Post("/recordings/process", h.ProcessTranscriptHandler)
	r.Get("/recordings/{id}", h.GetRecordingHandler)
	r.Patch("/recordings/{id}", h.UpdateRecordingHandler)

	r.Get("/conversations", h.GetConversationsHandler)
	r.Post("/conversations", h.CreateConversationHandler)
	r.Get("/conversations/{id}", h.GetConversationHandler)

	r.Post("/cache/cleanup", h.CacheCleanupHandler)

	return r
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to an HTTP status with a JSON body
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrTypeNetwork:
		status = http.StatusBadGateway
	case apperrors.ErrTypeCapture:
		status = http.StatusConflict
	}
	switch appErr.Code {
	case "NOTE_NOT_FOUND", "RECORDING_NOT_FOUND", "CONVERSATION_NOT_FOUND":
		status = http.StatusNotFound
	}

	if appErr.IsRetryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, map[string]string{
		"error": appErr.GetUserMessage(),
		"code":  appErr.Code,
	})
}

// HealthHandler reports service liveness
func (h *APIHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetNotesHandler returns all notes, optionally filtered by class or
// category via query parameters
func (h *APIHandlers) GetNotesHandler(w http.ResponseWriter, r *http.Request) {
	if class := r.URL.Query().Get("class"); class != "" {
		writeJSON(w, http.StatusOK, h.notes.GetNotesByClass(class))
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		writeJSON(w, http.StatusOK, h.notes.GetNotesByCategory(models.Category(category)))
		return
	}
	writeJSON(w, http.StatusOK, h.notes.GetNotes())
}

// CreateNoteHandler creates a new note
func (h *APIHandlers) CreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string           `json:"title"`
		ClassName string           `json:"className"`
		Professor models.Professor `json:"professor"`
		Content   string           `json:"content"`
		Category  models.Category  `json:"category"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	note, err := h.notes.CreateNote(req.Title, req.ClassName, req.Professor, req.Content, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

// GetNoteHandler returns a specific note by ID
func (h *APIHandlers) GetNoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	note, err := h.notes.GetNote(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// UpdateNoteHandler applies a partial update to an existing note
func (h *APIHandlers) UpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	var req models.NoteUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	note, err := h.notes.UpdateNote(id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// DeleteNoteHandler deletes a note and its attached audio
func (h *APIHandlers) DeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	if err := h.notes.DeleteNote(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachAudioHandler stores the request body as the note's audio blob.
// The blob's media type is taken from the Content-Type header.
func (h *APIHandlers) AttachAudioHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	blob, err := io.ReadAll(r.Body)
	if err != nil || len(blob) == 0 {
		http.Error(w, "Empty audio body", http.StatusBadRequest)
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	note, svcErr := h.notes.AttachAudio(id, blob, mimeType)
	if svcErr != nil {
		writeError(w, svcErr)
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

// GetAudioHandler streams a note's audio blob
func (h *APIHandlers) GetAudioHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid note ID", http.StatusBadRequest)
		return
	}

	rec, err := h.notes.GetAudio(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", rec.MimeType)
	w.Write(rec.Blob)
}

// GetClassesHandler returns the distinct class names
func (h *APIHandlers) GetClassesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notes.GetClasses())
}

// SearchHandler searches notes by query
func (h *APIHandlers) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Missing query parameter", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.notes.SearchNotes(query))
}

// GetRecordingsHandler returns all recordings, remote copy when
// reachable and the local mirror otherwise
func (h *APIHandlers) GetRecordingsHandler(w http.ResponseWriter, r *http.Request) {
	recordings, err := h.recordings.GetRecordings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordings)
}

// ProcessTranscriptHandler submits a transcript for processing
func (h *APIHandlers) ProcessTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transcript string `json:"transcript"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Transcript == "" {
		http.Error(w, "Missing transcript", http.StatusBadRequest)
		return
	}

	rec, err := h.recordings.ProcessTranscript(r.Context(), req.Transcript)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// GetRecordingHandler returns one recording by ID
func (h *APIHandlers) GetRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid recording ID", http.StatusBadRequest)
		return
	}

	rec, err := h.recordings.GetRecordingByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// UpdateRecordingHandler applies a partial update to a recording
func (h *APIHandlers) UpdateRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid recording ID", http.StatusBadRequest)
		return
	}

	var req models.RecordingUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rec, err := h.recordings.UpdateRecording(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetConversationsHandler returns every conversation
func (h *APIHandlers) GetConversationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.conversations.GetConversations())
}

// CreateConversationHandler opens a new conversation
func (h *APIHandlers) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string          `json:"title"`
		Category models.Category `json:"category"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	conv := h.conversations.CreateConversation(req.Title, req.Category)
	writeJSON(w, http.StatusCreated, conv)
}

// GetConversationHandler returns one conversation by ID
func (h *APIHandlers) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	conv, err := h.conversations.GetConversation(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// CacheCleanupHandler signals the gateway to sweep the audio cache
func (h *APIHandlers) CacheCleanupHandler(w http.ResponseWriter, r *http.Request) {
	h.gateway.HandleMessage(gateway.CleanupMessage)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Audio cache cleanup triggered",
	})
}
