package services

import (
	"strings"
	"sync"
	"sync/atomic"

	"aula/pkg/errors"
	"aula/pkg/models"
	"aula/pkg/utils"
)

// ErrConversationNotFound is returned for an unknown conversation ID
var ErrConversationNotFound = errors.New(errors.ErrTypeApp, "CONVERSATION_NOT_FOUND", "conversation not found").
	WithUserMessage("The requested conversation could not be found")

// ErrNoStreamingMessage is returned when a stream chunk arrives with no
// open AI message to receive it
var ErrNoStreamingMessage = errors.New(errors.ErrTypeApp, "NO_STREAMING_MESSAGE", "no AI message is currently streaming")

// StopFlag is a cooperative cancellation flag, checked between chunks
// of streamed work. There is no true in-flight cancellation.
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests the streaming loop to halt at the next chunk boundary
func (f *StopFlag) Stop() { f.stopped.Store(true) }

// Stopped reports whether a stop was requested
func (f *StopFlag) Stopped() bool { return f.stopped.Load() }

// ConversationService is the owned store for chat conversations. It is
// an explicit object injected into its consumers; nothing here is
// shared package-level state.
type ConversationService struct {
	mutex     sync.RWMutex
	order     []string
	byID      map[string]*models.Conversation
	streaming map[string]bool // conversation ID -> AI message open
}

// NewConversationService creates an empty conversation store
func NewConversationService() *ConversationService {
	return &ConversationService{
		byID:      make(map[string]*models.Conversation),
		streaming: make(map[string]bool),
	}
}

// CreateConversation starts a new conversation
func (s *ConversationService) CreateConversation(title string, category models.Category) *models.Conversation {
	conv := &models.Conversation{
		ID:       "conv-" + utils.GenerateShortUUID(),
		Title:    title,
		Category: category,
	}

	s.mutex.Lock()
	s.byID[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.mutex.Unlock()

	return conv
}

// AppendMessage appends a message, preserving insertion order
func (s *ConversationService) AppendMessage(convID string, msg models.Message) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	conv, exists := s.byID[convID]
	if !exists {
		return ErrConversationNotFound.WithContext("conversationId", convID)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = utils.NowMillis()
	}
	conv.Messages = append(conv.Messages, msg)
	s.streaming[convID] = false
	return nil
}

// BeginAIMessage opens an empty AI message at the tail of the
// conversation; AppendChunk mutates it in place until EndAIMessage.
func (s *ConversationService) BeginAIMessage(convID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	conv, exists := s.byID[convID]
	if !exists {
		return ErrConversationNotFound.WithContext("conversationId", convID)
	}
	conv.Messages = append(conv.Messages, models.Message{
		Role:      models.RoleAI,
		Timestamp: utils.NowMillis(),
	})
	s.streaming[convID] = true
	return nil
}

// AppendChunk appends streamed content to the open AI message
func (s *ConversationService) AppendChunk(convID, chunk string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	conv, exists := s.byID[convID]
	if !exists {
		return ErrConversationNotFound.WithContext("conversationId", convID)
	}
	if !s.streaming[convID] || len(conv.Messages) == 0 {
		return ErrNoStreamingMessage.WithContext("conversationId", convID)
	}
	conv.Messages[len(conv.Messages)-1].Content += chunk
	return nil
}

// EndAIMessage closes the open AI message; further chunks are rejected
func (s *ConversationService) EndAIMessage(convID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byID[convID]; !exists {
		return ErrConversationNotFound.WithContext("conversationId", convID)
	}
	s.streaming[convID] = false
	return nil
}

// StreamText streams a response into the open AI message word by word,
// checking the stop flag between words. A stopped stream leaves the
// words delivered so far in place and closes the message.
func (s *ConversationService) StreamText(convID, text string, stop *StopFlag) error {
	if err := s.BeginAIMessage(convID); err != nil {
		return err
	}

	words := strings.Fields(text)
	for i, word := range words {
		if stop != nil && stop.Stopped() {
			break
		}
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := s.AppendChunk(convID, chunk); err != nil {
			return err
		}
	}
	return s.EndAIMessage(convID)
}

// GetConversation returns a copy of a conversation
func (s *ConversationService) GetConversation(convID string) (*models.Conversation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	conv, exists := s.byID[convID]
	if !exists {
		return nil, ErrConversationNotFound.WithContext("conversationId", convID)
	}
	snapshot := *conv
	snapshot.Messages = make([]models.Message, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	return &snapshot, nil
}

// GetConversations returns all conversations in creation order
func (s *ConversationService) GetConversations() []*models.Conversation {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]*models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.byID[id])
	}
	return result
}
