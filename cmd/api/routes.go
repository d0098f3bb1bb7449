package main

import (
	"database/sql"
	"net/http"
	"time"

	"church-messaging/internal/httpapi"
	"church-messaging/internal/rbac"
	"church-messaging/internal/telephony"
	"church-messaging/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	DB          *sql.DB
	AuthMW      gin.HandlerFunc
	CORSOrigins []string
	Webhook     telephony.TwilioSMSWebhookHandler
	API         httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.Use(httpapi.CORS(d.CORSOrigins), httpapi.ClientIP())

	r.GET("/healthz", func(c *gin.Context) {
		if d.DB != nil {
			if err := utils.HealthCheck(c.Request.Context(), d.DB, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhook (public). Twilio retries on non-2xx.
	r.POST("/smsWebhook", d.Webhook.HandleInboundSMS)

	admin := r.Group("/")
	admin.Use(d.AuthMW, rbac.RequireChurch())
	{
		staff := admin.Group("/")
		staff.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleStaff))
		staff.POST("/checkTwilioMessages", d.API.CheckTwilioMessages)
		staff.GET("/getSMSResponses", d.API.GetSMSResponses)
		staff.POST("/sendSMS", d.API.SendSMS)
		staff.POST("/markMessagesRead", d.API.MarkMessagesRead)
		staff.GET("/unreadCounts", d.API.UnreadCounts)

		reports := admin.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		reports.GET("/messages", d.API.MessagesReport)
	}
}
