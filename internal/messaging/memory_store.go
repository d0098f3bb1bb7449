package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"church-messaging/internal/identity"
)

// MemoryStore is an in-memory MessageStore, CounterStore and
// identity.Directory for tests and local development.
// It is not intended for production use.
type MemoryStore struct {
	mu sync.Mutex

	docs     map[Collection][]Message
	counters map[string]map[string]int

	churches []string
	members  map[string]map[string]string // church -> local phone -> member id
	visitors map[string]map[string]string
	version  int64

	// FailWrite, when set, is consulted before every write.
	FailWrite func(coll Collection) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     map[Collection][]Message{},
		counters: map[string]map[string]int{},
		members:  map[string]map[string]string{},
		visitors: map[string]map[string]string{},
	}
}

// AddChurch registers a tenant. Registration order is resolution order.
func (s *MemoryStore) AddChurch(churchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.churches = append(s.churches, churchID)
	s.version++
}

func (s *MemoryStore) AddMember(churchID, memberID, localPhone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[churchID] == nil {
		s.members[churchID] = map[string]string{}
	}
	s.members[churchID][localPhone] = memberID
	s.version++
}

func (s *MemoryStore) AddVisitor(churchID, visitorID, localPhone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visitors[churchID] == nil {
		s.visitors[churchID] = map[string]string{}
	}
	s.visitors[churchID][localPhone] = visitorID
	s.version++
}

// Docs returns a snapshot of one collection in write order.
func (s *MemoryStore) Docs(coll Collection) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.docs[coll]))
	copy(out, s.docs[coll])
	return out
}

/* ===================== identity.Directory ===================== */

func (s *MemoryStore) ListChurchIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.churches))
	copy(out, s.churches)
	return out, nil
}

func (s *MemoryStore) FindMemberByPhone(ctx context.Context, churchID, localPhone string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.members[churchID][localPhone]
	return id, ok, nil
}

func (s *MemoryStore) FindVisitorByPhone(ctx context.Context, churchID, localPhone string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.visitors[churchID][localPhone]
	return id, ok, nil
}

func (s *MemoryStore) DirectoryVersion(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, nil
}

func (s *MemoryStore) HasMember(ctx context.Context, churchID, memberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hasID(s.members[churchID], memberID), nil
}

func (s *MemoryStore) HasVisitor(ctx context.Context, churchID, visitorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hasID(s.visitors[churchID], visitorID), nil
}

func hasID(byPhone map[string]string, id string) bool {
	for _, v := range byPhone {
		if v == id {
			return true
		}
	}
	return false
}

func (s *MemoryStore) LatestMessageTo(ctx context.Context, normalizedPhone string) (identity.Attribution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  Message
		found bool
	)
	for _, m := range s.docs[GlobalMessages] {
		if m.To != normalizedPhone {
			continue
		}
		if !found || !m.Timestamp.Before(best.Timestamp) {
			best, found = m, true
		}
	}
	return best.Attribution(), found, nil
}

/* ===================== MessageStore ===================== */

func (s *MemoryStore) Insert(ctx context.Context, coll Collection, m Message) error {
	if m.ID == "" {
		return fmt.Errorf("%w: message id required", ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(coll); err != nil {
		return err
	}
	if s.indexOf(coll, m.ID) >= 0 {
		return fmt.Errorf("messaging: %s/%s already exists", coll, m.ID)
	}
	if coll == GlobalMessages && s.sidTaken(m.TwilioSID, "") {
		return ErrDuplicateSID
	}
	s.docs[coll] = append(s.docs[coll], m)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, coll Collection, m Message) error {
	if m.ID == "" {
		return fmt.Errorf("%w: message id required", ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(coll); err != nil {
		return err
	}
	if coll == GlobalMessages && s.sidTaken(m.TwilioSID, m.ID) {
		return ErrDuplicateSID
	}
	if i := s.indexOf(coll, m.ID); i >= 0 {
		s.docs[coll][i] = m
		return nil
	}
	s.docs[coll] = append(s.docs[coll], m)
	return nil
}

func (s *MemoryStore) ExistingSIDs(ctx context.Context, sids []string) (map[string]bool, error) {
	if len(sids) > MaxSIDLookup {
		return nil, fmt.Errorf("%w: at most %d sids per lookup", ErrInvalidRequest, MaxSIDLookup)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(sids))
	for _, sid := range sids {
		if s.sidTaken(sid, "") {
			out[sid] = true
		}
	}
	return out, nil
}

func (s *MemoryStore) CommitBatch(ctx context.Context, items []BatchItem) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before the first write so the batch is all-or-nothing.
	batchSIDs := map[string]bool{}
	apply := make([]BatchItem, 0, len(items))
	for _, it := range items {
		if it.Message.ID == "" {
			return nil, fmt.Errorf("%w: message id required", ErrInvalidRequest)
		}
		if err := it.Message.Validate(); err != nil {
			return nil, err
		}
		sid := it.Message.TwilioSID
		if sid != "" && (batchSIDs[sid] || s.sidTaken(sid, "")) {
			continue
		}
		batchSIDs[sid] = true
		for _, coll := range append([]Collection{GlobalMessages}, it.Copies...) {
			if err := s.failWrite(coll); err != nil {
				return nil, err
			}
		}
		apply = append(apply, it)
	}

	stored := make([]Message, 0, len(apply))
	for _, it := range apply {
		s.docs[GlobalMessages] = append(s.docs[GlobalMessages], it.Message)
		for _, coll := range it.Copies {
			s.docs[coll] = append(s.docs[coll], it.Message)
		}
		stored = append(stored, it.Message)
	}
	return stored, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, coll Collection, a identity.Attribution) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.docs[coll] {
		if !m.IsRead && belongsTo(m, a) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, coll Collection, a identity.Attribution) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(coll); err != nil {
		return 0, err
	}
	n := 0
	for i, m := range s.docs[coll] {
		if !m.IsRead && belongsTo(m, a) {
			s.docs[coll][i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, coll Collection, from, to time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0)
	for _, m := range s.docs[coll] {
		if m.Timestamp.Before(from) || !m.Timestamp.Before(to) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

/* ===================== CounterStore ===================== */

func (s *MemoryStore) UpdateCounter(ctx context.Context, churchID string, audience Audience, fn func(counts map[string]int) error) error {
	if churchID == "" {
		return errors.New("messaging: church id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CounterPath(churchID, audience)
	counts := make(map[string]int, len(s.counters[key]))
	for k, v := range s.counters[key] {
		counts[k] = v
	}
	if err := fn(counts); err != nil {
		return err
	}
	s.counters[key] = counts
	return nil
}

func (s *MemoryStore) GetCounter(ctx context.Context, churchID string, audience Audience) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for k, v := range s.counters[CounterPath(churchID, audience)] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) failWrite(coll Collection) error {
	if s.FailWrite == nil {
		return nil
	}
	return s.FailWrite(coll)
}

func (s *MemoryStore) indexOf(coll Collection, id string) int {
	for i, m := range s.docs[coll] {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) sidTaken(sid, exceptID string) bool {
	if sid == "" {
		return false
	}
	for _, m := range s.docs[GlobalMessages] {
		if m.TwilioSID == sid && m.ID != exceptID {
			return true
		}
	}
	return false
}

func belongsTo(m Message, a identity.Attribution) bool {
	if m.ChurchID != a.ChurchID {
		return false
	}
	if a.MemberID != "" && m.MemberID != a.MemberID {
		return false
	}
	if a.VisitorID != "" && m.VisitorID != a.VisitorID {
		return false
	}
	return true
}
