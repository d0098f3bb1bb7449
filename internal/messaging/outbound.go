package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"church-messaging/internal/identity"
	"church-messaging/internal/phone"
	"church-messaging/internal/telephony"
	"church-messaging/pkg/logger"

	"github.com/google/uuid"
)

// Auditor records admin messaging actions. audit.Service implements it.
type Auditor interface {
	LogSMSSent(ctx context.Context, churchID, messageID, to string) error
	LogMessagesRead(ctx context.Context, a identity.Attribution, count int) error
}

type SendRequest struct {
	To              string `json:"to"`
	Message         string `json:"message"`
	ChurchID        string `json:"churchId"`
	SenderID        string `json:"senderId"`
	MemberID        string `json:"memberId,omitempty"`
	MemberName      string `json:"memberName,omitempty"`
	VisitorID       string `json:"visitorId,omitempty"`
	VisitorName     string `json:"visitorName,omitempty"`
	MessageID       string `json:"messageId,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

func (r SendRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" || strings.TrimSpace(r.Message) == "" || strings.TrimSpace(r.ChurchID) == "" {
		return fmt.Errorf("%w: to, message and churchId are required", ErrInvalidRequest)
	}
	if r.MemberID != "" && r.VisitorID != "" {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, ErrConflictingIdentity)
	}
	return nil
}

type SendResult struct {
	MessageID string `json:"messageId"`
	TwilioSID string `json:"twilioSid"`
	Status    string `json:"status"`
}

// Outbound sends an SMS and records it as an already-read outbound message.
type Outbound struct {
	Provider   telephony.SMSProvider
	Persister  *Persister
	Audit      Auditor
	FromNumber string

	Now func() time.Time
}

func (o *Outbound) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	if o.Provider == nil || o.Persister == nil {
		return SendResult{}, errors.New("messaging: outbound not configured")
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	log := logger.From(ctx)

	to := phone.Normalize(strings.TrimSpace(req.To))
	res, err := o.Provider.SendSMS(ctx, telephony.SendSMSRequest{To: to, From: o.FromNumber, Body: req.Message})
	if err != nil {
		log.Error("sms send failed", "church_id", req.ChurchID, "provider", o.Provider.Name(), "err", err)
		return SendResult{}, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	ts := now().UTC()
	m := Message{
		ID:              req.MessageID,
		From:            o.FromNumber,
		To:              to,
		Direction:       DirectionOutbound,
		Status:          res.Status,
		SentAt:          ts,
		Timestamp:       ts,
		ChurchID:        req.ChurchID,
		MemberID:        req.MemberID,
		VisitorID:       req.VisitorID,
		TwilioSID:       res.SID,
		IsRead:          true,
		SenderID:        req.SenderID,
		MemberName:      req.MemberName,
		VisitorName:     req.VisitorName,
		ClientMessageID: req.ClientMessageID,
	}
	m.SetText(req.Message)

	var stored Message
	if req.MessageID != "" {
		stored, err = o.Persister.Save(ctx, m)
	} else {
		m.ID = uuid.NewString()
		stored, err = o.Persister.Persist(ctx, m)
	}
	if err != nil {
		// The SMS already went out; the caller still needs the sid.
		log.Error("sent sms not stored", "sid", res.SID, "church_id", req.ChurchID, "err", err)
		return SendResult{TwilioSID: res.SID, Status: res.Status}, err
	}

	if o.Audit != nil {
		if aerr := o.Audit.LogSMSSent(ctx, req.ChurchID, stored.ID, to); aerr != nil {
			log.Warn("audit sms_sent failed", "err", aerr)
		}
	}

	log.Info("sms sent", "church_id", req.ChurchID, "message_id", stored.ID, "sid", res.SID)
	return SendResult{MessageID: stored.ID, TwilioSID: res.SID, Status: res.Status}, nil
}
