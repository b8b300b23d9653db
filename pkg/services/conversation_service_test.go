package services

import (
	"testing"

	goerrors "errors"

	"aula/pkg/models"
)

func TestConversationMessageOrder(t *testing.T) {
	svc := NewConversationService()
	conv := svc.CreateConversation("Study help", models.CategoryGeneral)

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if err := svc.AppendMessage(conv.ID, models.Message{Role: models.RoleUser, Content: c}); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	got, err := svc.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	for i, want := range contents {
		if got.Messages[i].Content != want {
			t.Fatalf("insertion order broken at %d: %q", i, got.Messages[i].Content)
		}
	}
}

func TestStreamingMutatesTrailingMessage(t *testing.T) {
	svc := NewConversationService()
	conv := svc.CreateConversation("Chat", models.CategoryGeneral)

	if err := svc.AppendMessage(conv.ID, models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := svc.BeginAIMessage(conv.ID); err != nil {
		t.Fatalf("BeginAIMessage failed: %v", err)
	}
	for _, chunk := range []string{"hello ", "there"} {
		if err := svc.AppendChunk(conv.ID, chunk); err != nil {
			t.Fatalf("AppendChunk failed: %v", err)
		}
	}

	got, _ := svc.GetConversation(conv.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("streaming must mutate the last message, not append: %d messages", len(got.Messages))
	}
	last := got.Messages[len(got.Messages)-1]
	if last.Role != models.RoleAI || last.Content != "hello there" {
		t.Fatalf("unexpected trailing message: %+v", last)
	}

	if err := svc.EndAIMessage(conv.ID); err != nil {
		t.Fatalf("EndAIMessage failed: %v", err)
	}
	if err := svc.AppendChunk(conv.ID, "late"); !goerrors.Is(err, ErrNoStreamingMessage) {
		t.Fatalf("chunks after stream end must be rejected, got %v", err)
	}
}

func TestStreamTextStopFlag(t *testing.T) {
	svc := NewConversationService()
	conv := svc.CreateConversation("Chat", models.CategoryGeneral)

	// Pre-stopped flag: the loop halts before the first word
	stop := &StopFlag{}
	stop.Stop()
	if err := svc.StreamText(conv.ID, "never delivered words", stop); err != nil {
		t.Fatalf("StreamText failed: %v", err)
	}

	got, _ := svc.GetConversation(conv.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("expected the opened AI message, got %d messages", len(got.Messages))
	}
	if got.Messages[0].Content != "" {
		t.Fatalf("stopped stream delivered content: %q", got.Messages[0].Content)
	}
}

func TestStreamTextFull(t *testing.T) {
	svc := NewConversationService()
	conv := svc.CreateConversation("Chat", models.CategoryGeneral)

	if err := svc.StreamText(conv.ID, "all the words arrive", nil); err != nil {
		t.Fatalf("StreamText failed: %v", err)
	}
	got, _ := svc.GetConversation(conv.ID)
	if got.Messages[0].Content != "all the words arrive" {
		t.Fatalf("unexpected streamed content: %q", got.Messages[0].Content)
	}
}

func TestConversationNotFound(t *testing.T) {
	svc := NewConversationService()
	if err := svc.AppendMessage("missing", models.Message{Role: models.RoleUser}); !goerrors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := svc.GetConversation("missing"); !goerrors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
