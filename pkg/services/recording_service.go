package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"aula/pkg/errors"
	"aula/pkg/models"
	"aula/pkg/storage"
	"aula/pkg/utils"
)

// ErrRecordingNotFound is returned when a recording exists neither
// remotely nor in the local mirror
var ErrRecordingNotFound = errors.New(errors.ErrTypeStorage, "RECORDING_NOT_FOUND", "recording not found").
	WithUserMessage("The requested recording could not be found")

// RecordingService mirrors class recordings against the backend.
// Every operation tries the remote first; on any network or HTTP
// failure it degrades to the local mirror without surfacing the
// failure as fatal. The remote copy wins whenever it is reachable.
//
// A merge made while offline is not re-sent when connectivity returns;
// there is no retry queue (see DESIGN.md).
type RecordingService struct {
	baseURL string
	userID  string
	client  *http.Client
	store   *storage.ObjectStore
	cache   *gocache.Cache // recording ID -> *models.Recording, no expiry
}

// NewRecordingService creates a recording service against a backend
// base URL. The local mirror is warmed from the object store's
// recordings collection.
func NewRecordingService(baseURL, userID string, store *storage.ObjectStore) *RecordingService {
	return &RecordingService{
		baseURL: baseURL,
		userID:  userID,
		client:  &http.Client{Timeout: 15 * time.Second},
		store:   store,
		cache:   gocache.New(gocache.NoExpiration, 0),
	}
}

// WarmCache loads the persisted local mirror into memory. Call once
// after the object store is initialized.
func (s *RecordingService) WarmCache() error {
	recordings, err := s.store.GetAllRecordings()
	if err != nil {
		return err
	}
	for _, rec := range recordings {
		s.cache.Set(rec.ID, rec, gocache.NoExpiration)
	}
	log.Printf("Recording mirror warmed with %d local records", len(recordings))
	return nil
}

// ProcessTranscript submits a transcript for backend processing. On
// success the processed recording is mirrored locally. On failure an
// unprocessed record is synthesized and persisted locally, so spoken
// content is never lost while the backend is unreachable.
func (s *RecordingService) ProcessTranscript(ctx context.Context, transcript string) (*models.Recording, error) {
	body, err := json.Marshal(map[string]string{
		"transcript": transcript,
		"userId":     s.userID,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeApp, "ENCODE_FAILED", "failed to encode transcript request")
	}

	var processed models.Recording
	remoteErr := s.doJSON(ctx, http.MethodPost, s.baseURL+"/recordings/process", body, &processed)
	if remoteErr == nil {
		s.mirror(&processed)
		return &processed, nil
	}
	remoteErr.Log()

	local := &models.Recording{
		ID:            "rec-" + utils.GenerateShortUUID(),
		Date:          utils.NowMillis(),
		RawTranscript: transcript,
		Processed:     false,
	}
	s.mirror(local)
	log.Printf("Backend unreachable, kept transcript locally as %s", local.ID)
	return local, nil
}

// GetRecordings fetches the collection. A successful fetch overwrites
// the local mirror wholesale; a failed one returns the mirror
// unchanged, stale but available. With no mirror and no remote, the
// result is empty, not an error.
func (s *RecordingService) GetRecordings(ctx context.Context) ([]*models.Recording, error) {
	var remote []*models.Recording
	remoteErr := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/recordings/%s", s.baseURL, s.userID), nil, &remote)
	if remoteErr == nil {
		s.cache.Flush()
		for _, rec := range remote {
			s.cache.Set(rec.ID, rec, gocache.NoExpiration)
		}
		if err := s.store.ReplaceRecordings(remote); err != nil {
			// The in-memory mirror is already current; losing the
			// persisted copy only costs freshness after a restart.
			log.Printf("Failed to persist recording mirror: %v", err)
		}
		return sortByDate(remote), nil
	}
	remoteErr.Log()

	return sortByDate(s.cachedRecordings()), nil
}

// GetRecordingByID is derived from GetRecordings; there is no
// independent fetch path, so offline reads serve whatever the mirror
// last saw.
func (s *RecordingService) GetRecordingByID(ctx context.Context, id string) (*models.Recording, error) {
	recordings, err := s.GetRecordings(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recordings {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, ErrRecordingNotFound.WithContext("recordingId", id)
}

// UpdateRecording patches the remote record and mirrors the result.
// On failure the partial update is merged into the local mirror
// directly, with no queued retry and no conflict resolution.
func (s *RecordingService) UpdateRecording(ctx context.Context, id string, update models.RecordingUpdate) (*models.Recording, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeApp, "ENCODE_FAILED", "failed to encode recording update")
	}

	var updated models.Recording
	remoteErr := s.doJSON(ctx, http.MethodPatch, fmt.Sprintf("%s/recordings/%s/%s", s.baseURL, s.userID, id), body, &updated)
	if remoteErr == nil {
		s.mirror(&updated)
		return &updated, nil
	}
	remoteErr.Log()

	cached, found := s.cache.Get(id)
	if !found {
		return nil, ErrRecordingNotFound.WithContext("recordingId", id)
	}
	merged := *(cached.(*models.Recording))
	applyRecordingUpdate(&merged, update)
	s.mirror(&merged)
	log.Printf("Backend unreachable, merged update into local mirror for %s", id)
	return &merged, nil
}

// mirror writes a recording to both layers of the local mirror
func (s *RecordingService) mirror(rec *models.Recording) {
	s.cache.Set(rec.ID, rec, gocache.NoExpiration)
	if err := s.store.PutRecording(rec); err != nil {
		log.Printf("Failed to persist recording %s: %v", rec.ID, err)
	}
}

func (s *RecordingService) cachedRecordings() []*models.Recording {
	items := s.cache.Items()
	recordings := make([]*models.Recording, 0, len(items))
	for _, item := range items {
		if rec, ok := item.Object.(*models.Recording); ok {
			recordings = append(recordings, rec)
		}
	}
	return recordings
}

func sortByDate(recordings []*models.Recording) []*models.Recording {
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Date > recordings[j].Date
	})
	return recordings
}

// applyRecordingUpdate merges non-nil fields of the partial update
func applyRecordingUpdate(rec *models.Recording, update models.RecordingUpdate) {
	if update.Processed != nil {
		rec.Processed = *update.Processed
	}
	if update.Summary != nil {
		rec.Summary = *update.Summary
	}
	if update.KeyPoints != nil {
		rec.KeyPoints = *update.KeyPoints
	}
	if update.Tasks != nil {
		rec.Tasks = *update.Tasks
	}
	if update.Dates != nil {
		rec.Dates = *update.Dates
	}
	if update.Notes != nil {
		rec.Notes = *update.Notes
	}
	if update.Topics != nil {
		rec.Topics = *update.Topics
	}
}

// doJSON performs a request and decodes a JSON response. A transport
// error maps to NETWORK_FAILURE and a non-2xx status to SERVER_ERROR;
// the two are treated identically by every caller.
func (s *RecordingService) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) *errors.AppError {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.ErrNetworkFailure.WithInternal(err).WithContext("url", url)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.ErrNetworkFailure.WithInternal(err).WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.ErrServerError.WithContext("url", url).WithContext("status", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.ErrServerError.WithInternal(err).WithContext("url", url)
		}
	}
	return nil
}
