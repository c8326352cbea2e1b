package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"amd-dashboard/internal/auth"
	"amd-dashboard/internal/calls"
	"amd-dashboard/internal/dialer"
	"amd-dashboard/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth   *auth.Manager
	Dialer *dialer.Service
	Repo   calls.Repository
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation lives in the external identity system; this
// endpoint only exchanges an already-verified identity for tokens.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Email)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Dial ---

// Dial places one outbound call with AMD enabled.
func (h Handlers) Dial(c *gin.Context) {
	if h.Dialer == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dialer not configured"})
		return
	}

	var req dialer.DialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Dialer.Dial(c.Request.Context(), req)
	if err != nil {
		var verr *dialer.ValidationError
		switch {
		case errors.As(err, &verr):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": verr.Violations})
		case errors.Is(err, dialer.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		case errors.Is(err, dialer.ErrStrategyNotImplemented):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Only TWILIO_NATIVE strategy is currently supported"})
		case errors.Is(err, dialer.ErrTooManyCalls):
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many concurrent calls"})
		case errors.Is(err, telephony.ErrProvider):
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate call", "message": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"callId":        res.CallID,
		"twilioCallSid": res.TwilioCallSID,
		"status":        res.Status,
		"message":       res.Message,
	})
}

// --- Call history ---

// ListCalls returns the caller's calls, newest first, filterable by status,
// AMD result and strategy.
func (h Handlers) ListCalls(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	f := calls.ListFilter{
		UserID:   userID,
		Status:   calls.CallStatus(c.Query("status")),
		Result:   calls.AMDResult(c.Query("result")),
		Strategy: calls.AMDStrategy(c.Query("strategy")),
		Limit:    intQuery(c, "limit"),
		Offset:   intQuery(c, "offset"),
	}

	rows, err := h.Repo.List(c.Request.Context(), f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if rows == nil {
		rows = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// GetCall returns one call by internal id. Records belong to their initiating
// user; anyone else gets a 404, not a 403, to avoid leaking record existence.
func (h Handlers) GetCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	rec, err := h.Repo.GetByID(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if rec.UserID != userID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetCallLogs returns the append-only audit trail for one call.
func (h Handlers) GetCallLogs(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	rec, err := h.Repo.GetByID(c.Request.Context(), c.Param("call_id"))
	if err != nil || rec.UserID != userID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}

	logs, err := h.Repo.ListLogs(c.Request.Context(), rec.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "log lookup failed"})
		return
	}
	if logs == nil {
		logs = []calls.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Summary aggregates the caller's call table for the dashboard header.
func (h Handlers) Summary(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sum, err := h.Repo.Summarize(c.Request.Context(), calls.ListFilter{UserID: userID})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func intQuery(c *gin.Context, key string) int {
	v := c.Query(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
