package internal

import (
	"context"
	"testing"
	"time"
)

// CreateTestDiscussion creates a discussion holding alternating user and bot turns
func CreateTestDiscussion(t testing.TB, store DiscussionStore, turns ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateDiscussion(ctx)
	if err != nil {
		t.Fatalf("CreateDiscussion() error = %v", err)
	}
	for i, content := range turns {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderBot
		}
		if _, err := store.AppendMessage(ctx, id, sender, content); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}
	return id
}

// CreateTestDiscussionValue builds an in-memory discussion without a store
func CreateTestDiscussionValue(number int64, messages ...Message) *Discussion {
	id := DiscussionID(number)
	created := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	for i := range messages {
		messages[i].DiscussionID = id
		if messages[i].ID == 0 {
			messages[i].ID = int64(i + 1)
		}
		if messages[i].Timestamp.IsZero() {
			messages[i].Timestamp = created.Add(time.Duration(i) * time.Second)
		}
	}
	if messages == nil {
		messages = []Message{}
	}
	return &Discussion{ID: id, Number: number, CreatedAt: created, Messages: messages}
}
