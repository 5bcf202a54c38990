package internal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DiscussionPrefix is the prefix shared by every discussion identifier.
const DiscussionPrefix = "discussion_"

// Well-known sender tags. The set is open: the store accepts any tag.
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
	SenderFile   = "file"
)

// UploadNoticePrefix starts the user message recorded before a file summary.
const UploadNoticePrefix = "Uploaded document: "

// TimestampLayout is the second-resolution layout used for persisted timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Message represents one stored turn of a discussion
type Message struct {
	ID           int64     `json:"id" yaml:"id"`
	DiscussionID string    `json:"discussion_id" yaml:"discussion_id"`
	Sender       string    `json:"sender" yaml:"sender"`
	Content      string    `json:"content" yaml:"content"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

// Discussion represents a named conversation log with its messages
type Discussion struct {
	ID        string    `json:"id" yaml:"id"`
	Number    int64     `json:"number" yaml:"number"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

// StoreStats summarizes store contents
type StoreStats struct {
	Discussions int
	Messages    int
	LastNumber  int64
}

// DiscussionStore is the durable, per-discussion append-only message log.
type DiscussionStore interface {
	CreateDiscussion(ctx context.Context) (string, error)
	ListDiscussions(ctx context.Context) ([]string, error)
	AppendMessage(ctx context.Context, discussionID, sender, content string) (Message, error)
	ReadMessages(ctx context.Context, discussionID string) ([]Message, error)
	DeleteDiscussion(ctx context.Context, discussionID string) error
	Stats(ctx context.Context) (StoreStats, error)
	Close() error
}

// DiscussionID formats the identifier for discussion number n.
func DiscussionID(n int64) string {
	return DiscussionPrefix + strconv.FormatInt(n, 10)
}

// ParseDiscussionID extracts N from "discussion_<N>".
func ParseDiscussionID(id string) (int64, error) {
	if !strings.HasPrefix(id, DiscussionPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDiscussionID, id)
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, DiscussionPrefix), 10, 64)
	if err != nil || n <= 0 || DiscussionID(n) != id {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDiscussionID, id)
	}
	return n, nil
}

// LoadDiscussion reads a discussion and all of its messages.
func LoadDiscussion(ctx context.Context, store DiscussionStore, id string) (*Discussion, error) {
	n, err := ParseDiscussionID(id)
	if err != nil {
		return nil, err
	}
	msgs, err := store.ReadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Discussion{ID: id, Number: n, Messages: msgs}
	if len(msgs) > 0 {
		d.CreatedAt = msgs[0].Timestamp
	}
	return d, nil
}
