package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"church-messaging/internal/identity"
	"church-messaging/internal/messaging"
	"church-messaging/internal/rbac"
	"church-messaging/internal/reporting"
	"church-messaging/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the admin messaging endpoints.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Sync     *messaging.SyncService
	Outbound *messaging.Outbound
	Read     *messaging.ReadService
	Counters messaging.CounterStore
	Reports  *reporting.Service
	// Roster, when set, rejects member and visitor ids from another church.
	Roster identity.Roster

	Now func() time.Time
}

type checkMessagesRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	ChurchID    string `json:"churchId"`
	MemberID    string `json:"memberId,omitempty"`
	VisitorID   string `json:"visitorId,omitempty"`
}

// CheckTwilioMessages imports the provider history of one number.
func (h Handlers) CheckTwilioMessages(c *gin.Context) {
	if h.Sync == nil {
		fail(c, http.StatusInternalServerError, "sync not configured")
		return
	}
	var req checkMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !h.authorizeFor(c, identity.Attribution{ChurchID: req.ChurchID, MemberID: req.MemberID, VisitorID: req.VisitorID}) {
		return
	}
	res, err := h.Sync.Sync(c.Request.Context(), messaging.SyncRequest{
		Phone:     req.PhoneNumber,
		ChurchID:  req.ChurchID,
		MemberID:  req.MemberID,
		VisitorID: req.VisitorID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"messages":        res.Messages,
		"newMessageCount": res.NewCount,
	})
}

// GetSMSResponses is the query-string flavour of CheckTwilioMessages used by
// the visitor follow-up screen.
func (h Handlers) GetSMSResponses(c *gin.Context) {
	if h.Sync == nil {
		fail(c, http.StatusInternalServerError, "sync not configured")
		return
	}
	churchID, visitorID := c.Query("churchId"), c.Query("visitorId")
	if !h.authorizeFor(c, identity.Attribution{ChurchID: churchID, VisitorID: visitorID}) {
		return
	}
	res, err := h.Sync.Sync(c.Request.Context(), messaging.SyncRequest{
		Phone:     c.Query("phone"),
		ChurchID:  churchID,
		VisitorID: visitorID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"messages":    res.Messages,
		"newMessages": res.NewCount,
	})
}

func (h Handlers) SendSMS(c *gin.Context) {
	if h.Outbound == nil {
		fail(c, http.StatusInternalServerError, "outbound not configured")
		return
	}
	var req messaging.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !h.authorizeFor(c, identity.Attribution{ChurchID: req.ChurchID, MemberID: req.MemberID, VisitorID: req.VisitorID}) {
		return
	}
	res, err := h.Outbound.Send(c.Request.Context(), req)
	if err != nil {
		if res.TwilioSID != "" {
			// Sent but not stored.
			logger.FromGin(c).Error("send sms: store failed", "sid", res.TwilioSID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success":   false,
				"error":     "message sent but could not be saved",
				"twilioSid": res.TwilioSID,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"messageId": res.MessageID,
		"twilioSid": res.TwilioSID,
		"status":    res.Status,
	})
}

func (h Handlers) MarkMessagesRead(c *gin.Context) {
	if h.Read == nil {
		fail(c, http.StatusInternalServerError, "read service not configured")
		return
	}
	var req identity.Attribution
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !h.authorizeFor(c, req) {
		return
	}
	n, err := h.Read.MarkRead(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

func (h Handlers) UnreadCounts(c *gin.Context) {
	if h.Counters == nil {
		fail(c, http.StatusInternalServerError, "counters not configured")
		return
	}
	churchID := c.Query("churchId")
	if !h.authorize(c, churchID) {
		return
	}
	audience, err := messaging.ParseAudience(c.DefaultQuery("audience", string(messaging.AudienceMembers)))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	counts, err := h.Counters.GetCounter(c.Request.Context(), churchID, audience)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "audience": audience, "counts": counts})
}

// MessagesReport summarises a church's SMS traffic. from/to are RFC 3339 and
// default to the last 30 days.
func (h Handlers) MessagesReport(c *gin.Context) {
	if h.Reports == nil {
		fail(c, http.StatusInternalServerError, "reporting not configured")
		return
	}
	churchID := c.Query("churchId")
	if !h.authorize(c, churchID) {
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	to := now().UTC()
	from := to.AddDate(0, 0, -30)
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fail(c, http.StatusBadRequest, key+" must be RFC 3339")
				return
			}
			*dst = t.UTC()
		}
	}

	out, err := h.Reports.MessagesSummary(c.Request.Context(), reporting.MessagesSummaryRequest{
		ChurchID: churchID,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": out})
}

// authorize enforces that the caller's token covers churchID. A missing
// churchId is left for the service to reject as bad input.
func (h Handlers) authorize(c *gin.Context, churchID string) bool {
	if strings.TrimSpace(churchID) == "" {
		return true
	}
	if !rbac.CanAccessChurch(c.Request.Context(), churchID) {
		fail(c, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

// authorizeFor also checks that a's member or visitor belongs to its church.
// Conflicting or incomplete attributions are left for the service to reject.
func (h Handlers) authorizeFor(c *gin.Context, a identity.Attribution) bool {
	if !h.authorize(c, a.ChurchID) {
		return false
	}
	if h.Roster == nil || a.Validate() != nil {
		return true
	}
	if err := identity.CheckRoster(c.Request.Context(), h.Roster, a); err != nil {
		if errors.Is(err, identity.ErrForeignIdentity) {
			fail(c, http.StatusForbidden, "member or visitor is not in this church")
			return false
		}
		writeError(c, err)
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, messaging.ErrInvalidRequest),
		errors.Is(err, messaging.ErrConflictingIdentity),
		errors.Is(err, reporting.ErrInvalidRequest):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, messaging.ErrSyncBusy):
		fail(c, http.StatusTooManyRequests, "a sync for this church is already running")
	case errors.Is(err, messaging.ErrProviderFailed):
		logger.FromGin(c).Error("sms provider call failed", "err", err)
		fail(c, http.StatusInternalServerError, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
