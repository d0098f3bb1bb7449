package telephony

import (
	"context"
	"errors"
	"time"
)

// SMSProvider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Request/response types stay provider-agnostic.
type SMSProvider interface {
	Name() string

	SendSMS(ctx context.Context, req SendSMSRequest) (SendSMSResult, error)

	// ListMessages returns at most PageSize messages matching exactly one of
	// To or From, newest first.
	ListMessages(ctx context.Context, filter ListFilter) ([]ProviderMessage, error)
}

var (
	ErrInvalidSend   = errors.New("telephony: to, from and body are required")
	ErrInvalidFilter = errors.New("telephony: exactly one of to or from is required")
)

type SendSMSRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

func (r SendSMSRequest) Validate() error {
	if r.To == "" || r.From == "" || r.Body == "" {
		return ErrInvalidSend
	}
	return nil
}

type SendSMSResult struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type ListFilter struct {
	To       string
	From     string
	PageSize int
}

func (f ListFilter) Validate() error {
	if (f.To == "") == (f.From == "") {
		return ErrInvalidFilter
	}
	return nil
}

// ProviderMessage is one message as reported by the provider's history API.
type ProviderMessage struct {
	SID       string
	From      string
	To        string
	Body      string
	Direction string // inbound | outbound-api | outbound-reply ...
	Status    string
	DateSent  time.Time
}

// Inbound reports whether the provider recorded the message as received.
func (m ProviderMessage) Inbound() bool { return m.Direction == "inbound" }
