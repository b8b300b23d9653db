package models

// Task is an action item extracted from a processed recording
type Task struct {
	Description string `json:"description"`
	DueDate     string `json:"dueDate,omitempty"`
	Done        bool   `json:"done"`
}

// ImportantDate is a dated event mentioned in a recording
type ImportantDate struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Recording is a class recording mirrored from the backend. The remote
// copy is authoritative when reachable; the local copy otherwise.
type Recording struct {
	ID            string          `json:"id"`
	Date          int64           `json:"date"` // epoch millis
	RawTranscript string          `json:"rawTranscript"`
	Processed     bool            `json:"processed"`
	Summary       string          `json:"summary,omitempty"`
	KeyPoints     []string        `json:"keyPoints,omitempty"`
	Tasks         []Task          `json:"tasks,omitempty"`
	Dates         []ImportantDate `json:"dates,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Topics        []string        `json:"topics,omitempty"`
}

// RecordingUpdate carries a partial update for a recording
type RecordingUpdate struct {
	Processed *bool            `json:"processed,omitempty"`
	Summary   *string          `json:"summary,omitempty"`
	KeyPoints *[]string        `json:"keyPoints,omitempty"`
	Tasks     *[]Task          `json:"tasks,omitempty"`
	Dates     *[]ImportantDate `json:"dates,omitempty"`
	Notes     *string          `json:"notes,omitempty"`
	Topics    *[]string        `json:"topics,omitempty"`
}
