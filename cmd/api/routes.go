package main

import (
	"amd-dashboard/internal/httpapi"
	"amd-dashboard/internal/webhook"

	"github.com/gin-gonic/gin"
)

type appDeps struct {
	authMW  gin.HandlerFunc
	api     httpapi.Handlers
	webhook webhook.TwilioHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps appDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation
	// in production.
	r.POST("/webhooks/twilio/voice", deps.webhook.HandleVoice)
	r.POST("/webhooks/twilio/status", deps.webhook.HandleStatus)
	r.POST("/webhooks/twilio/amd", deps.webhook.HandleAMD)

	// Token issuance sits outside the auth middleware.
	r.POST("/v1/auth/login", deps.api.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		v1.POST("/dial", deps.api.Dial)

		callRoutes := v1.Group("/calls")
		{
			callRoutes.GET("", deps.api.ListCalls)
			callRoutes.GET("/summary", deps.api.Summary)
			callRoutes.GET("/:call_id", deps.api.GetCall)
			callRoutes.GET("/:call_id/logs", deps.api.GetCallLogs)
		}
	}
}
