package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"aula/pkg/models"
	"aula/pkg/storage"
)

func newRecordingStore(t *testing.T) *storage.ObjectStore {
	t.Helper()
	store := storage.NewObjectStore(filepath.Join(t.TempDir(), "aula.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// deadBackendURL returns a URL nothing is listening on
func deadBackendURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

func TestProcessTranscriptRemoteSuccess(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/recordings/process" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.Recording{
			ID: "r1", Date: 500, RawTranscript: gotBody["transcript"],
			Processed: true, Summary: "cells make energy",
		})
	}))
	defer server.Close()

	svc := NewRecordingService(server.URL, "user-1", newRecordingStore(t))
	rec, err := svc.ProcessTranscript(context.Background(), "the mitochondria is the powerhouse")
	if err != nil {
		t.Fatalf("ProcessTranscript failed: %v", err)
	}
	if !rec.Processed || rec.Summary != "cells make energy" {
		t.Fatalf("expected processed remote record, got %+v", rec)
	}
	if gotBody["userId"] != "user-1" {
		t.Fatalf("expected userId in request, got %v", gotBody)
	}
}

func TestProcessTranscriptOffline(t *testing.T) {
	store := newRecordingStore(t)
	svc := NewRecordingService(deadBackendURL(t), "user-1", store)

	rec, err := svc.ProcessTranscript(context.Background(), "the mitochondria is the powerhouse")
	if err != nil {
		t.Fatalf("offline ProcessTranscript must not fail: %v", err)
	}
	if rec.Processed {
		t.Fatal("offline record must be unprocessed")
	}
	if rec.RawTranscript != "the mitochondria is the powerhouse" {
		t.Fatalf("transcript must never be lost, got %q", rec.RawTranscript)
	}
	if rec.ID == "" || rec.Date == 0 {
		t.Fatalf("offline record missing id or date: %+v", rec)
	}

	// Retrievable immediately afterward without network access
	recordings, err := svc.GetRecordings(context.Background())
	if err != nil {
		t.Fatalf("GetRecordings failed: %v", err)
	}
	if len(recordings) != 1 || recordings[0].ID != rec.ID {
		t.Fatalf("offline record not retrievable: %+v", recordings)
	}

	// getRecordingById, still offline, returns the same unprocessed record
	byID, err := svc.GetRecordingByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecordingByID failed: %v", err)
	}
	if byID.Processed || byID.RawTranscript != rec.RawTranscript {
		t.Fatalf("expected same unprocessed record, got %+v", byID)
	}
}

func TestOfflineRecordSurvivesRestart(t *testing.T) {
	store := newRecordingStore(t)
	svc := NewRecordingService(deadBackendURL(t), "user-1", store)

	rec, err := svc.ProcessTranscript(context.Background(), "kept")
	if err != nil {
		t.Fatalf("ProcessTranscript failed: %v", err)
	}

	// A fresh service over the same store plays the role of a restart
	reborn := NewRecordingService(deadBackendURL(t), "user-1", store)
	if err := reborn.WarmCache(); err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}
	recordings, err := reborn.GetRecordings(context.Background())
	if err != nil {
		t.Fatalf("GetRecordings failed: %v", err)
	}
	if len(recordings) != 1 || recordings[0].ID != rec.ID {
		t.Fatalf("offline record lost across restart: %+v", recordings)
	}
}

func TestGetRecordingsRemoteWins(t *testing.T) {
	store := newRecordingStore(t)

	// Seed a stale local record
	stale := NewRecordingService(deadBackendURL(t), "user-1", store)
	if _, err := stale.ProcessTranscript(context.Background(), "stale"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recordings/user-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]models.Recording{
			{ID: "remote-1", Date: 900, RawTranscript: "fresh", Processed: true},
		})
	}))
	defer server.Close()

	svc := NewRecordingService(server.URL, "user-1", store)
	if err := svc.WarmCache(); err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}

	recordings, err := svc.GetRecordings(context.Background())
	if err != nil {
		t.Fatalf("GetRecordings failed: %v", err)
	}
	if len(recordings) != 1 || recordings[0].ID != "remote-1" {
		t.Fatalf("remote must win wholesale, got %+v", recordings)
	}

	// The stale local record is gone from the mirror too
	persisted, err := store.GetAllRecordings()
	if err != nil {
		t.Fatalf("GetAllRecordings failed: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != "remote-1" {
		t.Fatalf("persisted mirror not overwritten: %+v", persisted)
	}
}

func TestGetRecordingsServerErrorFallsBack(t *testing.T) {
	store := newRecordingStore(t)

	seed := NewRecordingService(deadBackendURL(t), "user-1", store)
	rec, err := seed.ProcessTranscript(context.Background(), "local copy")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Non-2xx is treated the same as a transport failure
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewRecordingService(server.URL, "user-1", store)
	if err := svc.WarmCache(); err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}
	recordings, err := svc.GetRecordings(context.Background())
	if err != nil {
		t.Fatalf("GetRecordings must fall back, got %v", err)
	}
	if len(recordings) != 1 || recordings[0].ID != rec.ID {
		t.Fatalf("expected stale-but-available mirror, got %+v", recordings)
	}
}

func TestGetRecordingsEmptyOffline(t *testing.T) {
	svc := NewRecordingService(deadBackendURL(t), "user-1", newRecordingStore(t))

	recordings, err := svc.GetRecordings(context.Background())
	if err != nil {
		t.Fatalf("expected empty result, not an error: %v", err)
	}
	if len(recordings) != 0 {
		t.Fatalf("expected empty result, got %+v", recordings)
	}
}

func TestUpdateRecordingOfflineMerge(t *testing.T) {
	store := newRecordingStore(t)
	svc := NewRecordingService(deadBackendURL(t), "user-1", store)

	rec, err := svc.ProcessTranscript(context.Background(), "raw words")
	if err != nil {
		t.Fatalf("ProcessTranscript failed: %v", err)
	}

	notes := "my highlight"
	processed := true
	merged, err := svc.UpdateRecording(context.Background(), rec.ID, models.RecordingUpdate{
		Notes: &notes, Processed: &processed,
	})
	if err != nil {
		t.Fatalf("offline UpdateRecording must merge locally: %v", err)
	}
	if merged.Notes != "my highlight" || !merged.Processed {
		t.Fatalf("merge not applied: %+v", merged)
	}
	if merged.RawTranscript != "raw words" {
		t.Fatalf("merge clobbered untouched fields: %+v", merged)
	}
}

func TestUpdateRecordingRemoteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/recordings/user-1/r1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.Recording{ID: "r1", Date: 700, Processed: true, Summary: "patched"})
	}))
	defer server.Close()

	svc := NewRecordingService(server.URL, "user-1", newRecordingStore(t))
	summary := "patched"
	updated, err := svc.UpdateRecording(context.Background(), "r1", models.RecordingUpdate{Summary: &summary})
	if err != nil {
		t.Fatalf("UpdateRecording failed: %v", err)
	}
	if updated.Summary != "patched" {
		t.Fatalf("expected mirrored remote result, got %+v", updated)
	}

	// Remote result was mirrored locally
	offline := NewRecordingService(deadBackendURL(t), "user-1", svc.store)
	if err := offline.WarmCache(); err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}
	got, err := offline.GetRecordingByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("mirrored record missing: %v", err)
	}
	if got.Summary != "patched" {
		t.Fatalf("mirror stale: %+v", got)
	}
}
