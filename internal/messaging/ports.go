package messaging

import (
	"context"
	"time"

	"church-messaging/internal/identity"
)

// MaxSIDLookup is the largest id set ExistingSIDs accepts, mirroring the
// document store's IN-query limit.
const MaxSIDLookup = 10

// BatchItem is one global message plus the tenant copies stored with it.
type BatchItem struct {
	Message Message
	Copies  []Collection
}

// MessageStore persists messages by collection.
//
// Implementations must:
// - reject a second global message with the same TwilioSID (ErrDuplicateSID)
// - apply CommitBatch atomically
type MessageStore interface {
	// Insert creates a document; m.ID must be set.
	Insert(ctx context.Context, coll Collection, m Message) error
	// Upsert creates or replaces the document with id m.ID.
	Upsert(ctx context.Context, coll Collection, m Message) error

	// ExistingSIDs reports which of at most MaxSIDLookup sids are already
	// in the global collection.
	ExistingSIDs(ctx context.Context, sids []string) (map[string]bool, error)

	// CommitBatch writes all items or none. Items whose sid is already stored
	// globally are skipped along with their copies; the written messages are
	// returned.
	CommitBatch(ctx context.Context, items []BatchItem) ([]Message, error)

	CountUnread(ctx context.Context, coll Collection, a identity.Attribution) (int, error)
	// MarkRead flags the identity's unread messages in coll and returns how
	// many changed.
	MarkRead(ctx context.Context, coll Collection, a identity.Attribution) (int, error)

	// ListMessages returns messages with Timestamp in [from, to), oldest first.
	ListMessages(ctx context.Context, coll Collection, from, to time.Time) ([]Message, error)
}

// CounterStore holds the per-church unread counter maps.
type CounterStore interface {
	// UpdateCounter runs fn inside a read-modify-write transaction on one
	// counter document. A missing document starts as an empty map. The map
	// fn leaves behind is written back.
	UpdateCounter(ctx context.Context, churchID string, audience Audience, fn func(counts map[string]int) error) error
	GetCounter(ctx context.Context, churchID string, audience Audience) (map[string]int, error)
}
