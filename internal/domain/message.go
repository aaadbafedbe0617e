package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageRecord is a persisted conversation line and the thread it was posted to
type MessageRecord struct {
	ID        uuid.UUID `json:"id"`
	Scope     string    `json:"scope"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore persists message records. The latest record of a scope
// points at that scope's open thread.
type MessageStore interface {
	// Save persists the record and returns its id
	Save(ctx context.Context, record *MessageRecord) (uuid.UUID, error)

	// FindLatestOpenThread returns the thread id of the scope's most recent record
	FindLatestOpenThread(ctx context.Context, scope string) (string, bool, error)
}

// MessageHistory lists a scope's records oldest first
type MessageHistory interface {
	History(ctx context.Context, scope string) ([]MessageRecord, error)
}

// MessageArchive is a MessageStore that can also replay a scope
type MessageArchive interface {
	MessageStore
	MessageHistory
}
