package memory

import (
	"context"
	"testing"
)

func TestDraftStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewDraftStore()

	_ = store.SaveAnswer(ctx, "a1", "q1", "o1")
	_ = store.SaveAnswer(ctx, "a1", "q1", "o2")
	_ = store.SaveAnswer(ctx, "a1", "e1", "essay")

	answers, err := store.Answers(ctx, "a1")
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 2 || answers["q1"] != "o2" {
		t.Fatalf("expected latest answers, got %v", answers)
	}

	_ = store.Clear(ctx, "a1")
	if answers, _ := store.Answers(ctx, "a1"); len(answers) != 0 {
		t.Fatalf("expected draft cleared, got %v", answers)
	}
}
