package models

// Category classifies a note
type Category string

const (
	CategoryResumen    Category = "resumen"
	CategoryTarea      Category = "tarea"
	CategoryImportante Category = "importante"
	CategoryGeneral    Category = "general"
)

// IsValid reports whether the category is one of the known values
func (c Category) IsValid() bool {
	switch c {
	case CategoryResumen, CategoryTarea, CategoryImportante, CategoryGeneral:
		return true
	}
	return false
}

// Professor holds the structured professor record attached to a note
type Professor struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Note represents a class note
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ClassName string    `json:"className"`
	Content   string    `json:"content,omitempty"`
	Professor Professor `json:"professor"`
	Category  Category  `json:"category"`
	CreatedAt int64     `json:"createdAt"` // epoch millis, set once
	UpdatedAt int64     `json:"updatedAt"` // epoch millis, refreshed on every mutation
	HasAudio  bool      `json:"hasAudio"`
	AudioID   string    `json:"audioId,omitempty"` // set only while HasAudio is true
}

// NoteUpdate carries a partial update for a note. Nil fields are left
// unchanged by the merge.
type NoteUpdate struct {
	Title     *string    `json:"title,omitempty"`
	ClassName *string    `json:"className,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Professor *Professor `json:"professor,omitempty"`
	Category  *Category  `json:"category,omitempty"`
	HasAudio  *bool      `json:"hasAudio,omitempty"`
	AudioID   *string    `json:"audioId,omitempty"`
}
