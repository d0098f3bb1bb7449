package telephony

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds REST credentials. BaseURL is overridable for tests.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioClient talks to the Twilio Messages REST resource.
// Retries are off: a retried POST could send the same SMS twice.
type TwilioClient struct {
	http       *resty.Client
	accountSID string
}

func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("Accept", "application/json")

	return &TwilioClient{http: client, accountSID: cfg.AccountSID}
}

func (c *TwilioClient) Name() string { return "twilio" }

type twilioMessage struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Direction string `json:"direction"`
	Status    string `json:"status"`
	DateSent  string `json:"date_sent"`
}

type twilioMessagePage struct {
	Messages []twilioMessage `json:"messages"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (c *TwilioClient) messagesPath() string {
	return "/2010-04-01/Accounts/" + c.accountSID + "/Messages.json"
}

func (c *TwilioClient) SendSMS(ctx context.Context, req SendSMSRequest) (SendSMSResult, error) {
	if err := req.Validate(); err != nil {
		return SendSMSResult{}, err
	}

	var out twilioMessage
	var apiErr twilioError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   req.To,
			"From": req.From,
			"Body": req.Body,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.messagesPath())
	if err != nil {
		return SendSMSResult{}, fmt.Errorf("telephony: twilio send: %w", err)
	}
	if resp.IsError() {
		return SendSMSResult{}, fmt.Errorf("telephony: twilio send: %s", describeTwilioError(resp.StatusCode(), apiErr))
	}
	return SendSMSResult{SID: out.SID, Status: out.Status}, nil
}

func (c *TwilioClient) ListMessages(ctx context.Context, filter ListFilter) ([]ProviderMessage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	params := map[string]string{"PageSize": strconv.Itoa(pageSize)}
	if filter.To != "" {
		params["To"] = filter.To
	} else {
		params["From"] = filter.From
	}

	var page twilioMessagePage
	var apiErr twilioError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&page).
		SetError(&apiErr).
		Get(c.messagesPath())
	if err != nil {
		return nil, fmt.Errorf("telephony: twilio list: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telephony: twilio list: %s", describeTwilioError(resp.StatusCode(), apiErr))
	}

	out := make([]ProviderMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		if len(out) >= pageSize {
			break
		}
		pm := ProviderMessage{
			SID:       m.SID,
			From:      m.From,
			To:        m.To,
			Body:      m.Body,
			Direction: m.Direction,
			Status:    m.Status,
		}
		// Queued messages have no date_sent yet.
		if m.DateSent != "" {
			if ts, perr := time.Parse(time.RFC1123Z, m.DateSent); perr == nil {
				pm.DateSent = ts.UTC()
			}
		}
		out = append(out, pm)
	}
	return out, nil
}

func describeTwilioError(status int, e twilioError) string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", status)
	}
	return fmt.Sprintf("http %d: %s (code %d)", status, e.Message, e.Code)
}
