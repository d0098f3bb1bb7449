package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"church-messaging/internal/identity"
	"church-messaging/internal/phone"
	"church-messaging/internal/telephony"
	"church-messaging/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultSyncPageSize = 20

// SyncGate bounds concurrent syncs per church. utils.SlotGate satisfies it.
type SyncGate interface {
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type SyncRequest struct {
	Phone     string
	ChurchID  string
	MemberID  string
	VisitorID string
	// Limit is the page size for each direction. Zero means 20.
	Limit int
}

func (r SyncRequest) Validate() error {
	if strings.TrimSpace(r.Phone) == "" || strings.TrimSpace(r.ChurchID) == "" {
		return fmt.Errorf("%w: phone and churchId are required", ErrInvalidRequest)
	}
	if r.MemberID != "" && r.VisitorID != "" {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, ErrConflictingIdentity)
	}
	return nil
}

type SyncResult struct {
	// Messages holds everything the provider returned, oldest first.
	Messages []Message
	NewCount int
}

// SyncService imports a number's message history from the SMS provider.
// Messages already stored (by sid) are skipped, so repeated syncs are
// idempotent.
type SyncService struct {
	Provider   telephony.SMSProvider
	Store      MessageStore
	Reconciler *Reconciler
	Gate       SyncGate

	Now func() time.Time
}

func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	if err := req.Validate(); err != nil {
		return SyncResult{}, err
	}
	if s.Provider == nil || s.Store == nil {
		return SyncResult{}, errors.New("messaging: sync service not configured")
	}
	log := logger.From(ctx)

	if s.Gate != nil {
		token, ok, err := s.Gate.Acquire(ctx, req.ChurchID)
		switch {
		case err != nil:
			log.Warn("sync gate unavailable, continuing without it", "church_id", req.ChurchID, "err", err)
		case !ok:
			return SyncResult{}, ErrSyncBusy
		default:
			defer func() {
				if rerr := s.Gate.Release(context.WithoutCancel(ctx), req.ChurchID, token); rerr != nil {
					log.Warn("sync gate release failed", "church_id", req.ChurchID, "err", rerr)
				}
			}()
		}
	}

	number := phone.Normalize(strings.TrimSpace(req.Phone))
	fetched, err := s.fetch(ctx, number, req.Limit)
	if err != nil {
		return SyncResult{}, err
	}

	a := identity.Attribution{ChurchID: req.ChurchID, MemberID: req.MemberID, VisitorID: req.VisitorID}
	msgs := make([]Message, 0, len(fetched))
	for _, pm := range fetched {
		msgs = append(msgs, s.toMessage(pm, a))
	}

	fresh, err := s.unseen(ctx, msgs)
	if err != nil {
		return SyncResult{}, err
	}

	var stored []Message
	if len(fresh) > 0 {
		items := make([]BatchItem, 0, len(fresh))
		for _, m := range fresh {
			m.ID = uuid.NewString()
			items = append(items, BatchItem{Message: m, Copies: CopyCollections(m)})
		}
		stored, err = s.Store.CommitBatch(ctx, items)
		if err != nil {
			return SyncResult{}, fmt.Errorf("messaging: sync batch: %w", err)
		}
	}

	inbound := 0
	storedIDs := make(map[string]string, len(stored))
	for _, m := range stored {
		storedIDs[m.TwilioSID] = m.ID
		if m.Direction == DirectionInbound {
			inbound++
		}
	}
	for i := range msgs {
		if id, ok := storedIDs[msgs[i].TwilioSID]; ok {
			msgs[i].ID = id
		}
	}
	if s.Reconciler != nil {
		s.Reconciler.Reconcile(ctx, a, inbound)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	log.Info("provider sync complete",
		"church_id", req.ChurchID,
		"fetched", len(msgs),
		"new", len(stored),
	)
	return SyncResult{Messages: msgs, NewCount: len(stored)}, nil
}

// fetch pulls the "to" and "from" pages concurrently and joins them,
// dropping repeated sids.
func (s *SyncService) fetch(ctx context.Context, number string, limit int) ([]telephony.ProviderMessage, error) {
	if limit <= 0 {
		limit = defaultSyncPageSize
	}

	var toNumber, fromNumber []telephony.ProviderMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		toNumber, err = s.Provider.ListMessages(gctx, telephony.ListFilter{To: number, PageSize: limit})
		return err
	})
	g.Go(func() error {
		var err error
		fromNumber, err = s.Provider.ListMessages(gctx, telephony.ListFilter{From: number, PageSize: limit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	seen := make(map[string]bool, len(toNumber)+len(fromNumber))
	out := make([]telephony.ProviderMessage, 0, len(toNumber)+len(fromNumber))
	for _, pm := range append(toNumber, fromNumber...) {
		if pm.SID == "" || seen[pm.SID] {
			continue
		}
		seen[pm.SID] = true
		out = append(out, pm)
	}
	return out, nil
}

func (s *SyncService) toMessage(pm telephony.ProviderMessage, a identity.Attribution) Message {
	ts := pm.DateSent
	if ts.IsZero() {
		if s.Now != nil {
			ts = s.Now().UTC()
		} else {
			ts = time.Now().UTC()
		}
	}
	m := Message{
		From:      pm.From,
		To:        pm.To,
		Direction: DirectionOutbound,
		Status:    pm.Status,
		SentAt:    ts,
		Timestamp: ts,
		TwilioSID: pm.SID,
		IsRead:    true,
	}
	if pm.Inbound() {
		m.Direction = DirectionInbound
		m.IsRead = false
	}
	m.SetText(pm.Body)
	m.Attribute(a)
	return m
}

// unseen filters out messages whose sid is already stored, querying in
// chunks of MaxSIDLookup.
func (s *SyncService) unseen(ctx context.Context, msgs []Message) ([]Message, error) {
	existing := make(map[string]bool, len(msgs))
	for start := 0; start < len(msgs); start += MaxSIDLookup {
		end := min(start+MaxSIDLookup, len(msgs))
		sids := make([]string, 0, end-start)
		for _, m := range msgs[start:end] {
			sids = append(sids, m.TwilioSID)
		}
		found, err := s.Store.ExistingSIDs(ctx, sids)
		if err != nil {
			return nil, fmt.Errorf("messaging: sid lookup: %w", err)
		}
		for sid, ok := range found {
			if ok {
				existing[sid] = true
			}
		}
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !existing[m.TwilioSID] {
			out = append(out, m)
		}
	}
	return out, nil
}
