package remediation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-course/internal/remediation"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := remediation.NewMemoryStore()

	id, err := s.CreateConversation(ctx, remediation.Conversation{LearnerID: "learner-1", QuizID: "final-check"})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	if err := s.AddMessage(ctx, id, remediation.StoredMessage{Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if err := s.SetSummary(ctx, id, "said hi", 1); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.LearnerID != "learner-1" || conv.QuizID != "final-check" {
		t.Errorf("conversation = %+v", conv)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].CreatedAt.IsZero() {
		t.Errorf("messages = %+v", conv.Messages)
	}
	if conv.Summary != "said hi" || conv.CompactedAt != 1 {
		t.Errorf("summary = %q at %d", conv.Summary, conv.CompactedAt)
	}

	if err := s.EndConversation(ctx, id); err != nil {
		t.Fatalf("EndConversation() error = %v", err)
	}
	conv, _ = s.GetConversation(ctx, id)
	if conv.EndedAt == nil {
		t.Error("EndedAt is nil after EndConversation")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := remediation.NewMemoryStore()
	id, _ := s.CreateConversation(ctx, remediation.Conversation{LearnerID: "learner-1"})
	_ = s.AddMessage(ctx, id, remediation.StoredMessage{Role: "user", Content: "hi"})

	conv, _ := s.GetConversation(ctx, id)
	conv.Messages[0].Content = "changed"
	conv.Summary = "changed"

	again, _ := s.GetConversation(ctx, id)
	if again.Messages[0].Content != "hi" || again.Summary != "" {
		t.Errorf("stored conversation was mutated: %+v", again)
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := remediation.NewMemoryStore()

	if _, err := s.CreateConversation(ctx, remediation.Conversation{}); err == nil {
		t.Error("CreateConversation() without learner should fail")
	}
	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, remediation.ErrConversationNotFound) {
		t.Errorf("GetConversation() error = %v", err)
	}
	if err := s.AddMessage(ctx, "missing", remediation.StoredMessage{Role: "user", Content: "x"}); !errors.Is(err, remediation.ErrConversationNotFound) {
		t.Errorf("AddMessage() error = %v", err)
	}
	if err := s.SetSummary(ctx, "missing", "x", 1); !errors.Is(err, remediation.ErrConversationNotFound) {
		t.Errorf("SetSummary() error = %v", err)
	}
	if err := s.EndConversation(ctx, "missing"); !errors.Is(err, remediation.ErrConversationNotFound) {
		t.Errorf("EndConversation() error = %v", err)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := remediation.NewPostgresStore(nil); err == nil {
		t.Fatal("NewPostgresStore(nil) should return error")
	}
}
