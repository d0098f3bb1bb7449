package reporting

import (
	"context"
	"errors"
	"time"

	"church-messaging/internal/messaging"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of the message store.
type Repository interface {
	ListMessages(ctx context.Context, coll messaging.Collection, from, to time.Time) ([]messaging.Message, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// MessagesSummary aggregates the church's member and visitor conversations.
// The global collection is not read; a church only ever sees its own copies.
func (s *Service) MessagesSummary(ctx context.Context, req MessagesSummaryRequest) (MessagesSummary, error) {
	if req.ChurchID == "" {
		return MessagesSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return MessagesSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return MessagesSummary{}, errors.New("reporting: repository not configured")
	}

	out := MessagesSummary{ChurchID: req.ChurchID, Range: req.Range}
	members := map[string]struct{}{}
	visitors := map[string]struct{}{}

	for _, coll := range []messaging.Collection{
		messaging.ChurchMessages(req.ChurchID),
		messaging.VisitorMessages(req.ChurchID),
	} {
		rows, err := s.repo.ListMessages(ctx, coll, req.Range.From, req.Range.To)
		if err != nil {
			return MessagesSummary{}, err
		}
		for _, m := range rows {
			if m.ChurchID != req.ChurchID {
				continue
			}
			out.Total++
			switch m.Direction {
			case messaging.DirectionInbound:
				out.Inbound++
				if !m.IsRead {
					out.Unread++
				}
			case messaging.DirectionOutbound:
				out.Outbound++
			}
			switch {
			case m.MemberID != "":
				out.MemberMessages++
				members[m.MemberID] = struct{}{}
			case m.VisitorID != "":
				out.VisitorMessages++
				visitors[m.VisitorID] = struct{}{}
			}
		}
	}
	out.DistinctMembers = len(members)
	out.DistinctVisitors = len(visitors)
	return out, nil
}
