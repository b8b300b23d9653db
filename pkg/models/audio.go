package models

// AudioRecord stores the raw audio payload of a recorded note.
// Records attached to a note use the "<noteId>_audio" id convention;
// the id is otherwise opaque.
type AudioRecord struct {
	ID        string `json:"id"`
	Blob      []byte `json:"-"`
	MimeType  string `json:"mimeType,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch millis, creation time
}
