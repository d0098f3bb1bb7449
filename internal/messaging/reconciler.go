package messaging

import (
	"context"
	"errors"
	"fmt"

	"church-messaging/internal/identity"
	"church-messaging/pkg/logger"
)

// Reconciler maintains the adminConnect unread counters.
//
// Members are incremented in place. Visitors are recounted from
// visitorMessages and the entry is overwritten. The two can drift from the
// isRead flags; ResetMember/ResetVisitor realign them after a mark-read.
type Reconciler struct {
	Messages MessageStore
	Counters CounterStore
}

func NewReconciler(messages MessageStore, counters CounterStore) *Reconciler {
	return &Reconciler{Messages: messages, Counters: counters}
}

// Reconcile applies n new inbound messages for a. Failures are logged only.
func (r *Reconciler) Reconcile(ctx context.Context, a identity.Attribution, n int) {
	if n <= 0 || !a.Attributed() {
		return
	}
	log := logger.From(ctx)

	var err error
	switch a.Kind() {
	case identity.KindMember:
		err = r.IncrementMember(ctx, a.ChurchID, a.MemberID, n)
	case identity.KindVisitor:
		err = r.RecountVisitor(ctx, a.ChurchID, a.VisitorID)
	default:
		return
	}
	if err != nil {
		log.Error("unread counter update failed", "church_id", a.ChurchID, "kind", string(a.Kind()), "err", err)
	}
}

func (r *Reconciler) IncrementMember(ctx context.Context, churchID, memberID string, n int) error {
	if r.Counters == nil {
		return errors.New("messaging: counter store not configured")
	}
	err := r.Counters.UpdateCounter(ctx, churchID, AudienceMembers, func(counts map[string]int) error {
		counts[memberID] = clamp(counts[memberID] + n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("messaging: increment member counter: %w", err)
	}
	return nil
}

func (r *Reconciler) RecountVisitor(ctx context.Context, churchID, visitorID string) error {
	if r.Counters == nil || r.Messages == nil {
		return errors.New("messaging: reconciler not configured")
	}
	a := identity.Attribution{ChurchID: churchID, VisitorID: visitorID}
	n, err := r.Messages.CountUnread(ctx, VisitorMessages(churchID), a)
	if err != nil {
		return fmt.Errorf("messaging: count visitor unread: %w", err)
	}
	err = r.Counters.UpdateCounter(ctx, churchID, AudienceVisitors, func(counts map[string]int) error {
		counts[visitorID] = clamp(n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("messaging: overwrite visitor counter: %w", err)
	}
	return nil
}

func (r *Reconciler) ResetMember(ctx context.Context, churchID, memberID string) error {
	if r.Counters == nil {
		return errors.New("messaging: counter store not configured")
	}
	err := r.Counters.UpdateCounter(ctx, churchID, AudienceMembers, func(counts map[string]int) error {
		counts[memberID] = 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("messaging: reset member counter: %w", err)
	}
	return nil
}

func (r *Reconciler) ResetVisitor(ctx context.Context, churchID, visitorID string) error {
	return r.RecountVisitor(ctx, churchID, visitorID)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
