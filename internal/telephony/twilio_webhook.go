package telephony

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"church-messaging/pkg/logger"

	"github.com/gin-gonic/gin"
)

// InboundSMS captures the subset of messaging webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/messaging/guides/webhook-request
//
// From is passed through raw; normalization belongs to the pipeline.
type InboundSMS struct {
	MessageSid string `form:"MessageSid" json:"MessageSid"`
	SmsSid     string `form:"SmsSid" json:"SmsSid"`
	AccountSid string `form:"AccountSid" json:"AccountSid"`
	From       string `form:"From" json:"From"`
	To         string `form:"To" json:"To"`
	Body       string `form:"Body" json:"Body"`
	NumMedia   int    `form:"NumMedia" json:"NumMedia"`
}

// ProviderID is MessageSid, falling back to the legacy SmsSid.
func (in InboundSMS) ProviderID() string {
	if in.MessageSid != "" {
		return in.MessageSid
	}
	return in.SmsSid
}

// ParseTwilioInboundSMS reads a form-encoded webhook request.
func ParseTwilioInboundSMS(r *http.Request) (InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return InboundSMS{}, err
	}
	in := InboundSMS{
		MessageSid: strings.TrimSpace(r.PostFormValue("MessageSid")),
		SmsSid:     strings.TrimSpace(r.PostFormValue("SmsSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Body:       r.PostFormValue("Body"),
	}
	if n, err := strconv.Atoi(r.PostFormValue("NumMedia")); err == nil {
		in.NumMedia = n
	}
	return in, nil
}

// InboundSMSHandler is implemented by the messaging pipeline.
type InboundSMSHandler interface {
	HandleInboundSMS(ctx context.Context, in InboundSMS) error
}

// TwilioSMSWebhookHandler converts the Twilio webhook to internal types,
// delegates to the pipeline, and writes TwiML.
//
// No business logic here. Twilio requires a TwiML body on every response,
// including errors.
type TwilioSMSWebhookHandler struct {
	Pipeline InboundSMSHandler
}

func (h TwilioSMSWebhookHandler) HandleInboundSMS(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Pipeline == nil {
		log.Error("sms pipeline not configured")
		writeTwiML(c, http.StatusInternalServerError)
		return
	}

	var (
		in  InboundSMS
		err error
	)
	if c.ContentType() == gin.MIMEJSON {
		err = c.ShouldBindJSON(&in)
	} else {
		in, err = ParseTwilioInboundSMS(c.Request)
	}
	if err != nil {
		log.Warn("twilio sms webhook parse failed", "err", err)
		writeTwiML(c, http.StatusBadRequest)
		return
	}
	if in.From == "" || in.Body == "" {
		log.Warn("twilio sms webhook missing fields", "has_from", in.From != "", "has_body", in.Body != "")
		writeTwiML(c, http.StatusBadRequest)
		return
	}

	if err := h.Pipeline.HandleInboundSMS(c.Request.Context(), in); err != nil {
		log.Error("inbound sms failed", "sid", in.ProviderID(), "err", err)
		writeTwiML(c, http.StatusInternalServerError)
		return
	}

	writeTwiML(c, http.StatusOK)
}

// EmptyTwiML acknowledges an inbound SMS without replying. The webhook
// returns it on every path.
const EmptyTwiML = "<Response></Response>"

func writeTwiML(c *gin.Context, status int) {
	c.Header("Content-Type", "application/xml")
	c.String(status, EmptyTwiML)
}
