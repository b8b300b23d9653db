package models

// Role identifies who produced a chat message
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Attachment references a file sent alongside a chat message
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a single chat message. While an AI response streams in,
// the trailing message of the conversation is mutated in place.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   int64        `json:"timestamp"` // epoch millis
	Category    Category     `json:"category,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Conversation groups an ordered sequence of messages
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Category Category  `json:"category,omitempty"`
}
