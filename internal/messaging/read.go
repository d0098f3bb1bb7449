package messaging

import (
	"context"
	"errors"
	"fmt"

	"church-messaging/internal/identity"
	"church-messaging/pkg/logger"
)

// ReadService marks an identity's messages read and realigns its counter.
type ReadService struct {
	Store      MessageStore
	Reconciler *Reconciler
	Audit      Auditor
}

// MarkRead returns the number of tenant-scoped messages that changed.
func (s *ReadService) MarkRead(ctx context.Context, a identity.Attribution) (int, error) {
	if a.ChurchID == "" || (a.MemberID == "") == (a.VisitorID == "") {
		return 0, fmt.Errorf("%w: churchId and exactly one of memberId or visitorId are required", ErrInvalidRequest)
	}
	if s.Store == nil {
		return 0, errors.New("messaging: read service not configured")
	}
	log := logger.From(ctx)

	colls := []Collection{UnreadCollection(a), GlobalMessages}
	if a.MemberID != "" {
		colls = append(colls, MemberMessages(a.MemberID))
	}

	changed := 0
	for i, coll := range colls {
		n, err := s.Store.MarkRead(ctx, coll, a)
		if err != nil {
			return changed, fmt.Errorf("messaging: mark read in %s: %w", coll, err)
		}
		// The tenant collection is the one the badge counts.
		if i == 0 {
			changed = n
		}
	}

	if s.Reconciler != nil {
		var err error
		if a.MemberID != "" {
			err = s.Reconciler.ResetMember(ctx, a.ChurchID, a.MemberID)
		} else {
			err = s.Reconciler.ResetVisitor(ctx, a.ChurchID, a.VisitorID)
		}
		if err != nil {
			log.Error("unread counter reset failed", "church_id", a.ChurchID, "err", err)
		}
	}

	if s.Audit != nil {
		if aerr := s.Audit.LogMessagesRead(ctx, a, changed); aerr != nil {
			log.Warn("audit messages_marked_read failed", "err", aerr)
		}
	}
	return changed, nil
}
