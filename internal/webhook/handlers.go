package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"amd-dashboard/internal/calls"
	"amd-dashboard/internal/dialer"
	"amd-dashboard/internal/telephony"
	"amd-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TwilioHandler reconciles asynchronous Twilio callbacks into the call store.
//
// Callbacks arrive out of order and may repeat; every handler applies
// field-scoped overwrites and leans on the store for atomicity. No ordering
// is enforced beyond last-write-wins for mutable fields and first-write-wins
// for answered_at/ended_at. Stale-looking updates are accepted on purpose:
// rejecting them risks discarding a legitimate terminal status.
//
// Lookup is by provider call SID only; callbacks for SIDs this system never
// issued are answered 404 and change nothing.
type TwilioHandler struct {
	Repo calls.Repository

	// Limiter releases the caller's dial slot on terminal status. Optional.
	Limiter *dialer.Limiter

	Now func() time.Time
}

func (h TwilioHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleStatus processes a call-status callback.
func (h TwilioHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)

	callSid := c.PostForm("CallSid")
	rawStatus := c.PostForm("CallStatus")
	rawDuration := c.PostForm("CallDuration")
	from := c.PostForm("From")
	to := c.PostForm("To")

	if callSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}
	log.Info("status callback", "call_sid", callSid, "status", rawStatus)

	record, err := h.Repo.GetByProviderSID(c.Request.Context(), callSid)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Warn("status callback for unknown call", "call_sid", callSid)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		log.Error("call lookup failed", "call_sid", callSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	mapped := telephony.MapCallStatus(rawStatus)
	u := calls.StatusUpdate{Status: mapped, RawStatus: rawStatus}

	if rawDuration != "" {
		if n, err := strconv.Atoi(rawDuration); err == nil && n >= 0 {
			u.DurationSeconds = &n
		} else {
			log.Warn("unparseable call duration", "call_sid", callSid, "duration", rawDuration)
		}
	}

	now := h.now()
	if mapped == calls.StatusInProgress {
		// First-write-only in the store; a duplicate stamp is a no-op there.
		u.AnsweredAt = &now
	}
	if mapped.Terminal() {
		u.EndedAt = &now
	}

	if err := h.Repo.ApplyStatus(c.Request.Context(), record.ID, u); err != nil {
		log.Error("status update failed", "call_id", record.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// One audit entry per callback received, duplicates included: the trail
	// records provider communication, not derived state.
	h.appendLog(c, record.ID, "call_status_"+rawStatus,
		"Call status changed to "+rawStatus, calls.LevelInfo,
		mustJSON(map[string]any{"callSid": callSid, "from": from, "to": to, "duration": rawDuration}))

	if mapped.Terminal() && h.Limiter != nil {
		if err := h.Limiter.Release(c.Request.Context(), record.UserID); err != nil {
			log.Warn("dial slot release failed", "user_id", record.UserID, "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleAMD processes the async AMD result callback.
func (h TwilioHandler) HandleAMD(c *gin.Context) {
	log := logger.FromGin(c)

	callSid := c.PostForm("CallSid")
	answeredBy := c.PostForm("AnsweredBy")
	rawDetection := c.PostForm("MachineDetectionDuration")
	rawStatus := c.PostForm("CallStatus")

	if callSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}
	log.Info("amd callback", "call_sid", callSid, "answered_by", answeredBy)

	record, err := h.Repo.GetByProviderSID(c.Request.Context(), callSid)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			log.Warn("amd callback for unknown call", "call_sid", callSid)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		log.Error("call lookup failed", "call_sid", callSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	result := telephony.MapAnsweredBy(answeredBy)
	var latency *int
	if rawDetection != "" {
		if n, err := strconv.Atoi(rawDetection); err == nil && n >= 0 {
			latency = &n
		}
	}
	confidence := telephony.Confidence(answeredBy, latency)

	// A later AMD callback simply replaces an earlier one; at-most-once
	// delivery is expected from the provider but not assumed here.
	err = h.Repo.ApplyAMD(c.Request.Context(), record.ID, calls.AMDUpdate{
		Result:             result,
		Confidence:         confidence,
		DetectionLatencyMS: latency,
		Metadata: mustJSON(map[string]any{
			"twilioAnsweredBy":        answeredBy,
			"twilioDetectionDuration": latency,
			"callStatus":              rawStatus,
		}),
	})
	if err != nil {
		log.Error("amd update failed", "call_id", record.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.appendLog(c, record.ID, "amd_detected",
		fmt.Sprintf("AMD detected: %s (%s) with %.0f%% confidence", result, answeredBy, confidence*100),
		calls.LevelInfo,
		mustJSON(map[string]any{
			"answeredBy":       answeredBy,
			"amdResult":        result,
			"confidence":       confidence,
			"detectionLatency": latency,
		}))

	if result == calls.ResultHuman {
		h.appendLog(c, record.ID, "human_detected", "Human detected - continuing call", calls.LevelInfo, "")
	} else {
		h.appendLog(c, record.ID, "machine_detected", fmt.Sprintf("Machine/Voicemail detected - %s", result), calls.LevelInfo, "")
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"amdResult":        result,
		"confidence":       confidence,
		"detectionLatency": latency,
	})
}

// HandleVoice serves the in-call voice instructions. It is stateless: it
// never reads or writes the call store. Whatever goes wrong, the response is
// valid TwiML so the provider is never left holding a call with no
// instructions.
func (h TwilioHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)
	log.Info("voice callback", "call_sid", c.PostForm("CallSid"), "status", c.PostForm("CallStatus"))

	twiml, err := telephony.RenderVoiceScript()
	if err != nil {
		log.Error("voice script render failed", "err", err)
		c.Header("Content-Type", "text/xml")
		c.String(http.StatusInternalServerError, telephony.HangupScript)
		return
	}

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twiml)
}

// appendLog is best-effort; a failed audit write must not fail the callback,
// since the record mutation has already committed.
func (h TwilioHandler) appendLog(c *gin.Context, callID, event, message string, level calls.LogLevel, metadata string) {
	err := h.Repo.AppendLog(c.Request.Context(), calls.LogEntry{
		ID:       uuid.NewString(),
		CallID:   callID,
		Event:    event,
		Message:  message,
		Level:    level,
		Metadata: metadata,
	})
	if err != nil {
		logger.FromGin(c).Error("call log append failed", "call_id", callID, "event", event, "err", err)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
