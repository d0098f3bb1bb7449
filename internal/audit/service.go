package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"church-messaging/internal/auth"
	"church-messaging/internal/identity"

	"github.com/google/uuid"
)

// Repository stores audit events. It has no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service stamps and appends audit events. Callers log and ignore its errors.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ChurchID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.ActorUserID == "" {
		e.ActorUserID, _ = auth.UserID(ctx)
	}
	if e.ActorRole == "" {
		e.ActorRole, _ = auth.Role(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = ClientIPFromContext(ctx)
	}
	return s.repo.Append(ctx, e)
}

// LogSMSSent records an outbound SMS sent from the admin console.
func (s *Service) LogSMSSent(ctx context.Context, churchID, messageID, to string) error {
	meta, _ := json.Marshal(map[string]string{"to": to})
	return s.Append(ctx, Event{
		ChurchID:  churchID,
		Type:      EventTypeSMSSent,
		MessageID: messageID,
		Message:   "sms sent",
		Metadata:  string(meta),
	})
}

// LogMessagesRead records an admin clearing an identity's unread messages.
func (s *Service) LogMessagesRead(ctx context.Context, a identity.Attribution, count int) error {
	meta, _ := json.Marshal(struct {
		identity.Attribution
		Count int `json:"count"`
	}{a, count})
	return s.Append(ctx, Event{
		ChurchID: a.ChurchID,
		Type:     EventTypeMessagesMarkedRead,
		Message:  "messages marked read",
		Metadata: string(meta),
	})
}
