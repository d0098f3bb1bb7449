package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"church-messaging/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutbound(store *MemoryStore, p *fakeProvider, a Auditor) *Outbound {
	return &Outbound{
		Provider:   p,
		Persister:  NewPersister(store),
		Audit:      a,
		FromNumber: churchNumber,
		Now:        func() time.Time { return fixedNow },
	}
}

func TestOutbound_SendStoresReadOutboundMessage(t *testing.T) {
	store := NewMemoryStore()
	p := newFakeProvider()
	aud := &fakeAuditor{}

	res, err := newOutbound(store, p, aud).Send(context.Background(), SendRequest{
		To: "(703) 555-1234", Message: "See you Sunday", ChurchID: "church-A", SenderID: "admin-1", MemberID: "m-1", MemberName: "Ann",
	})
	require.NoError(t, err)
	assert.Equal(t, "SMout", res.TwilioSID)
	assert.Equal(t, "queued", res.Status)
	assert.NotEmpty(t, res.MessageID)

	require.Len(t, p.sent, 1)
	assert.Equal(t, "+17035551234", p.sent[0].To)
	assert.Equal(t, churchNumber, p.sent[0].From)

	global := store.Docs(GlobalMessages)
	require.Len(t, global, 1)
	assert.Equal(t, DirectionOutbound, global[0].Direction)
	assert.True(t, global[0].IsRead)
	assert.Equal(t, "admin-1", global[0].SenderID)
	assert.Equal(t, "Ann", global[0].MemberName)
	assert.Len(t, store.Docs(ChurchMessages("church-A")), 1)
	assert.Empty(t, store.Docs(MemberMessages("m-1")))

	assert.Equal(t, []string{res.MessageID}, aud.sent)
}

func TestOutbound_VisitorCopyGoesToVisitorMessages(t *testing.T) {
	store := NewMemoryStore()
	_, err := newOutbound(store, newFakeProvider(), nil).Send(context.Background(), SendRequest{
		To: "7035551234", Message: "Welcome!", ChurchID: "church-A", VisitorID: "v-1", VisitorName: "Bo",
	})
	require.NoError(t, err)
	assert.Len(t, store.Docs(VisitorMessages("church-A")), 1)
	assert.Empty(t, store.Docs(ChurchMessages("church-A")))
}

func TestOutbound_MessageIDUpsertsExistingDocument(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, GlobalMessages, Message{ID: "msg-1", Status: "pending", Direction: DirectionOutbound, ChurchID: "church-A"}))

	res, err := newOutbound(store, newFakeProvider(), nil).Send(ctx, SendRequest{
		To: "7035551234", Message: "hello", ChurchID: "church-A", MessageID: "msg-1", ClientMessageID: "c-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.MessageID)

	global := store.Docs(GlobalMessages)
	require.Len(t, global, 1)
	assert.Equal(t, "queued", global[0].Status)
	assert.Equal(t, "SMout", global[0].TwilioSID)
	assert.Equal(t, "c-9", global[0].ClientMessageID)
}

func TestOutbound_ProviderFailureStoresNothing(t *testing.T) {
	store := NewMemoryStore()
	p := newFakeProvider()
	p.sendErr = errors.New("21211 invalid number")

	_, err := newOutbound(store, p, nil).Send(context.Background(), SendRequest{To: "1", Message: "x", ChurchID: "c"})
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Empty(t, store.Docs(GlobalMessages))
}

func TestOutbound_AuditFailureIsNotFatal(t *testing.T) {
	store := NewMemoryStore()
	_, err := newOutbound(store, newFakeProvider(), &fakeAuditor{err: errors.New("audit down")}).Send(context.Background(), SendRequest{To: "1", Message: "x", ChurchID: "c"})
	assert.NoError(t, err)
}

func TestOutbound_Validation(t *testing.T) {
	o := newOutbound(NewMemoryStore(), newFakeProvider(), nil)
	for _, req := range []SendRequest{
		{Message: "x", ChurchID: "c"},
		{To: "1", ChurchID: "c"},
		{To: "1", Message: "x"},
		{To: "1", Message: "x", ChurchID: "c", MemberID: "m", VisitorID: "v"},
	} {
		_, err := o.Send(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestReadService_MemberResetsCounter(t *testing.T) {
	store := NewMemoryStore()
	store.AddChurch("church-A")
	store.AddMember("church-A", "m-1", "7035551234")
	ctx := context.Background()

	p := newPipeline(store)
	for _, sid := range []string{"SM1", "SM2"} {
		_, err := p.Process(ctx, inboundSMS("7035551234", sid))
		require.NoError(t, err)
	}

	aud := &fakeAuditor{}
	svc := &ReadService{Store: store, Reconciler: NewReconciler(store, store), Audit: aud}
	a := identity.Attribution{ChurchID: "church-A", MemberID: "m-1"}

	n, err := svc.MarkRead(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	unread, _ := store.CountUnread(ctx, ChurchMessages("church-A"), a)
	assert.Zero(t, unread)
	unread, _ = store.CountUnread(ctx, MemberMessages("m-1"), a)
	assert.Zero(t, unread)
	counts, _ := store.GetCounter(ctx, "church-A", AudienceMembers)
	assert.Equal(t, 0, counts["m-1"])
	assert.Equal(t, []identity.Attribution{a}, aud.read)

	n, err = svc.MarkRead(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadService_VisitorRecountsToZero(t *testing.T) {
	store := NewMemoryStore()
	store.AddChurch("church-A")
	store.AddVisitor("church-A", "v-1", "7035551234")
	ctx := context.Background()

	_, err := newPipeline(store).Process(ctx, inboundSMS("7035551234", "SM1"))
	require.NoError(t, err)
	counts, _ := store.GetCounter(ctx, "church-A", AudienceVisitors)
	require.Equal(t, 1, counts["v-1"])

	svc := &ReadService{Store: store, Reconciler: NewReconciler(store, store)}
	_, err = svc.MarkRead(ctx, identity.Attribution{ChurchID: "church-A", VisitorID: "v-1"})
	require.NoError(t, err)

	counts, _ = store.GetCounter(ctx, "church-A", AudienceVisitors)
	assert.Equal(t, 0, counts["v-1"])
}

func TestReadService_Validation(t *testing.T) {
	svc := &ReadService{Store: NewMemoryStore()}
	for _, a := range []identity.Attribution{
		{MemberID: "m"},
		{ChurchID: "c"},
		{ChurchID: "c", MemberID: "m", VisitorID: "v"},
	} {
		_, err := svc.MarkRead(context.Background(), a)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}
