package messaging

import (
	"context"
	"sync"

	"church-messaging/internal/identity"
	"church-messaging/internal/telephony"
)

type fakeProvider struct {
	mu sync.Mutex

	byTo   map[string][]telephony.ProviderMessage
	byFrom map[string][]telephony.ProviderMessage

	listErr error
	sendErr error
	sendRes telephony.SendSMSResult

	sent      []telephony.SendSMSRequest
	listCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byTo:    map[string][]telephony.ProviderMessage{},
		byFrom:  map[string][]telephony.ProviderMessage{},
		sendRes: telephony.SendSMSResult{SID: "SMout", Status: "queued"},
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SendSMS(ctx context.Context, req telephony.SendSMSRequest) (telephony.SendSMSResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, req)
	if p.sendErr != nil {
		return telephony.SendSMSResult{}, p.sendErr
	}
	return p.sendRes, nil
}

func (p *fakeProvider) ListMessages(ctx context.Context, f telephony.ListFilter) ([]telephony.ProviderMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	src := p.byFrom[f.From]
	if f.To != "" {
		src = p.byTo[f.To]
	}
	if f.PageSize > 0 && len(src) > f.PageSize {
		src = src[:f.PageSize]
	}
	out := make([]telephony.ProviderMessage, len(src))
	copy(out, src)
	return out, nil
}

type fakeAuditor struct {
	mu   sync.Mutex
	sent []string // message ids
	read []identity.Attribution
	err  error
}

func (a *fakeAuditor) LogSMSSent(ctx context.Context, churchID, messageID, to string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, messageID)
	return a.err
}

func (a *fakeAuditor) LogMessagesRead(ctx context.Context, at identity.Attribution, count int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.read = append(a.read, at)
	return a.err
}

type failingResolver struct{ err error }

func (r failingResolver) Resolve(ctx context.Context, phone string) (identity.Attribution, error) {
	return identity.Attribution{}, r.err
}

func inboundSMS(from, sid string) telephony.InboundSMS {
	return telephony.InboundSMS{From: from, Body: "hello " + sid, MessageSid: sid}
}
