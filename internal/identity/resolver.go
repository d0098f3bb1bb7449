package identity

import (
	"context"
	"errors"
	"fmt"

	"church-messaging/internal/phone"
	"church-messaging/pkg/logger"
)

// ScanResolver attributes a number by walking every church.
//
// Order of precedence:
//  1) member of the first church (in registration order) with that phone
//  2) visitor of that same church
//  3) the attribution of the last message we sent to that number
//  4) unattributed
//
// The scan is O(churches) queries per message; IndexedResolver caches hits.
type ScanResolver struct {
	Dir Directory
}

func NewScanResolver(dir Directory) *ScanResolver {
	return &ScanResolver{Dir: dir}
}

func (r *ScanResolver) Resolve(ctx context.Context, normalizedPhone string) (Attribution, error) {
	a, _, err := r.resolve(ctx, normalizedPhone)
	return a, err
}

// resolve also reports whether the answer came from a church directory
// match (cacheable) rather than message history.
func (r *ScanResolver) resolve(ctx context.Context, normalizedPhone string) (Attribution, bool, error) {
	if r.Dir == nil {
		return Attribution{}, false, errors.New("identity: directory not configured")
	}
	log := logger.From(ctx)
	local := phone.Local(normalizedPhone)

	churches, err := r.Dir.ListChurchIDs(ctx)
	if err != nil {
		return Attribution{}, false, fmt.Errorf("identity: list churches: %w", err)
	}

	for _, churchID := range churches {
		memberID, ok, err := r.Dir.FindMemberByPhone(ctx, churchID, local)
		if err != nil {
			return Attribution{}, false, fmt.Errorf("identity: member lookup in %s: %w", churchID, err)
		}
		if ok {
			log.Debug("sender matched member", "church_id", churchID, "member_id", memberID)
			return Attribution{ChurchID: churchID, MemberID: memberID}, true, nil
		}

		visitorID, ok, err := r.Dir.FindVisitorByPhone(ctx, churchID, local)
		if err != nil {
			return Attribution{}, false, fmt.Errorf("identity: visitor lookup in %s: %w", churchID, err)
		}
		if ok {
			log.Debug("sender matched visitor", "church_id", churchID, "visitor_id", visitorID)
			return Attribution{ChurchID: churchID, VisitorID: visitorID}, true, nil
		}
	}

	prev, ok, err := r.Dir.LatestMessageTo(ctx, normalizedPhone)
	if err != nil {
		return Attribution{}, false, fmt.Errorf("identity: message history lookup: %w", err)
	}
	if ok {
		// Member wins if a stored row carries both.
		if prev.MemberID != "" {
			prev.VisitorID = ""
		}
		log.Debug("sender attributed from message history", "church_id", prev.ChurchID)
		return prev, false, nil
	}

	return Attribution{}, false, nil
}
