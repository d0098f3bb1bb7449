package messaging

import (
	"context"
	"errors"
	"fmt"

	"church-messaging/pkg/logger"

	"github.com/google/uuid"
)

// Persister writes a message to the global collection and then to its
// tenant copies. Only the global write has to succeed; copy failures are
// logged and the global document stays.
type Persister struct {
	Store MessageStore
}

func NewPersister(store MessageStore) *Persister {
	return &Persister{Store: store}
}

// Persist inserts m under a fresh id (unless one is set).
func (p *Persister) Persist(ctx context.Context, m Message) (Message, error) {
	return p.write(ctx, m, p.Store.Insert)
}

// Save creates or replaces m.ID in every collection it belongs to.
func (p *Persister) Save(ctx context.Context, m Message) (Message, error) {
	if m.ID == "" {
		return Message{}, fmt.Errorf("%w: message id required", ErrInvalidRequest)
	}
	return p.write(ctx, m, p.Store.Upsert)
}

type putFunc func(ctx context.Context, coll Collection, m Message) error

func (p *Persister) write(ctx context.Context, m Message, put putFunc) (Message, error) {
	if p.Store == nil {
		return Message{}, errors.New("messaging: message store not configured")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	if err := put(ctx, GlobalMessages, m); err != nil {
		return Message{}, fmt.Errorf("messaging: global write: %w", err)
	}

	log := logger.From(ctx)
	for _, coll := range CopyCollections(m) {
		if err := put(ctx, coll, m); err != nil {
			log.Warn("message copy failed", "collection", string(coll), "message_id", m.ID, "err", err)
		}
	}
	return m, nil
}
