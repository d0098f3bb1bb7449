package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"church-messaging/internal/identity"
	"church-messaging/internal/phone"
	"church-messaging/internal/telephony"
	"church-messaging/pkg/logger"
)

// Pipeline handles one inbound SMS: normalize, resolve, persist, reconcile.
// Steps run strictly in order. Only a failed global write is returned to
// the caller; resolution and counter failures degrade.
type Pipeline struct {
	Resolver   identity.Resolver
	Persister  *Persister
	Reconciler *Reconciler

	Now func() time.Time
}

func (p *Pipeline) HandleInboundSMS(ctx context.Context, in telephony.InboundSMS) error {
	_, err := p.Process(ctx, in)
	return err
}

// Process runs the pipeline and returns the stored global message.
// A redelivered webhook whose sid is already stored is a no-op.
func (p *Pipeline) Process(ctx context.Context, in telephony.InboundSMS) (Message, error) {
	if p.Persister == nil {
		return Message{}, errors.New("messaging: persister not configured")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	log := logger.From(ctx)

	from := phone.Normalize(strings.TrimSpace(in.From))
	sid := in.ProviderID()
	ts := now().UTC()

	m := Message{
		From:      from,
		To:        strings.TrimSpace(in.To),
		Direction: DirectionInbound,
		Status:    "received",
		SentAt:    ts,
		Timestamp: ts,
		TwilioSID: sid,
	}
	m.SetText(in.Body)

	if p.Resolver != nil {
		a, err := p.Resolver.Resolve(ctx, from)
		if err != nil {
			log.Error("sender resolution failed, storing unattributed", "from", from, "err", err)
		} else if verr := a.Validate(); verr != nil {
			log.Error("resolver returned conflicting identity, storing unattributed", "church_id", a.ChurchID)
		} else {
			m.Attribute(a)
		}
	}

	stored, err := p.Persister.Persist(ctx, m)
	if errors.Is(err, ErrDuplicateSID) {
		log.Info("inbound sms already stored", "sid", sid)
		return m, nil
	}
	if err != nil {
		return Message{}, err
	}

	if p.Reconciler != nil {
		p.Reconciler.Reconcile(ctx, stored.Attribution(), 1)
	}

	log.Info("inbound sms stored",
		"message_id", stored.ID,
		"sid", sid,
		"church_id", stored.ChurchID,
		"kind", string(stored.Attribution().Kind()),
	)
	return stored, nil
}
