package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NowMillis returns the current time as epoch milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// GenerateShortUUID generates a short UUID (8 characters) for identifiers
func GenerateShortUUID() string {
	fullUUID := uuid.New().String()
	// Take first 8 characters for a short but still unique identifier
	return strings.ReplaceAll(fullUUID[:8], "-", "")
}

// GenerateNoteID generates a time-based note ID. The millisecond prefix
// keeps IDs roughly sortable; the suffix disambiguates IDs created
// within the same millisecond.
func GenerateNoteID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), GenerateShortUUID())
}

// AudioIDFor returns the audio record ID for a note, following the
// "<noteId>_audio" convention
func AudioIDFor(noteID string) string {
	return noteID + "_audio"
}
