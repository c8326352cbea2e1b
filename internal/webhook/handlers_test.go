package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"amd-dashboard/internal/calls"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(repo calls.Repository, now time.Time) *gin.Engine {
	h := TwilioHandler{Repo: repo, Now: func() time.Time { return now }}
	r := gin.New()
	r.POST("/webhooks/twilio/status", h.HandleStatus)
	r.POST("/webhooks/twilio/amd", h.HandleAMD)
	r.POST("/webhooks/twilio/voice", h.HandleVoice)
	return r
}

func seedCall(t *testing.T, repo *calls.MemoryRepo, sid string) calls.Call {
	t.Helper()
	c, err := repo.Create(context.Background(), calls.Call{
		ID:          "call-" + sid,
		UserID:      "user-1",
		PhoneNumber: "+18007742678",
		AMDStrategy: calls.StrategyTwilioNative,
		Direction:   calls.DirectionOutbound,
		Status:      calls.StatusInitiated,
	}, calls.LogEntry{ID: "log-" + sid, Event: "call_initiated", Level: calls.LevelInfo})
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	if err := repo.AssignProviderSID(context.Background(), c.ID, sid, calls.StatusRinging); err != nil {
		t.Fatalf("seed assign: %v", err)
	}
	return c
}

func postForm(t *testing.T, r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusCallbackUnknownSID(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000000, 0))

	w := postForm(t, r, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA404"},
		"CallStatus": {"completed"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	// No record fabricated.
	if _, err := repo.GetByProviderSID(context.Background(), "CA404"); err != calls.ErrNotFound {
		t.Fatalf("expected no record, got %v", err)
	}
}

func TestStatusCallbackInProgressStampsAnsweredAt(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000100, 0).UTC()
	r := newRouter(repo, now)
	c := seedCall(t, repo, "CA1")

	w := postForm(t, r, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"in-progress"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != calls.StatusInProgress || got.TwilioStatus != "in-progress" {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.AnsweredAt == nil || !got.AnsweredAt.Equal(now) {
		t.Fatalf("expected answered_at %v, got %v", now, got.AnsweredAt)
	}

	// A duplicate in-progress callback must not move the stamp.
	later := newRouter(repo, now.Add(time.Minute))
	_ = postForm(t, later, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"in-progress"},
	})
	got, _ = repo.GetByID(context.Background(), c.ID)
	if !got.AnsweredAt.Equal(now) {
		t.Fatalf("answered_at moved on duplicate callback: %v", got.AnsweredAt)
	}

	logs, _ := repo.ListLogs(context.Background(), c.ID)
	// seed entry + one per callback, duplicates included.
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
	if logs[1].Event != "call_status_in-progress" {
		t.Fatalf("unexpected event: %s", logs[1].Event)
	}
}

func TestStatusCallbackTerminalStampsEndedAtOnce(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000200, 0).UTC()
	r := newRouter(repo, now)
	c := seedCall(t, repo, "CA2")

	w := postForm(t, r, "/webhooks/twilio/status", url.Values{
		"CallSid":      {"CA2"},
		"CallStatus":   {"completed"},
		"CallDuration": {"12"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != calls.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	if got.DurationSeconds != 12 {
		t.Fatalf("expected duration 12, got %d", got.DurationSeconds)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(now) {
		t.Fatalf("expected ended_at %v, got %v", now, got.EndedAt)
	}

	// Duplicate terminal callback: ended_at keeps its first value, the
	// last-reported duration wins.
	later := newRouter(repo, now.Add(time.Minute))
	_ = postForm(t, later, "/webhooks/twilio/status", url.Values{
		"CallSid":      {"CA2"},
		"CallStatus":   {"completed"},
		"CallDuration": {"13"},
	})
	got, _ = repo.GetByID(context.Background(), c.ID)
	if !got.EndedAt.Equal(now) {
		t.Fatalf("ended_at moved on duplicate terminal callback: %v", got.EndedAt)
	}
	if got.DurationSeconds != 13 {
		t.Fatalf("expected last-reported duration, got %d", got.DurationSeconds)
	}
}

func TestStatusCallbackUnrecognizedStatusFails(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000300, 0))
	c := seedCall(t, repo, "CA3")

	_ = postForm(t, r, "/webhooks/twilio/status", url.Values{
		"CallSid":    {"CA3"},
		"CallStatus": {"transmogrified"},
	})
	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != calls.StatusFailed {
		t.Fatalf("expected closed-world FAILED, got %s", got.Status)
	}
	if got.TwilioStatus != "transmogrified" {
		t.Fatalf("raw status must be stored verbatim, got %q", got.TwilioStatus)
	}
	if got.EndedAt == nil {
		t.Fatalf("FAILED is terminal, expected ended_at stamp")
	}
}

func TestAMDCallbackVoicemailWithFastDetection(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000400, 0))
	c := seedCall(t, repo, "CA4")

	w := postForm(t, r, "/webhooks/twilio/amd", url.Values{
		"CallSid":                  {"CA4"},
		"AnsweredBy":               {"machine_end_beep"},
		"MachineDetectionDuration": {"2800"},
		"CallStatus":               {"in-progress"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success          bool    `json:"success"`
		AMDResult        string  `json:"amdResult"`
		Confidence       float64 `json:"confidence"`
		DetectionLatency *int    `json:"detectionLatency"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 2800 < 3000 grants the fast-detection bonus on the 0.90 base.
	if resp.AMDResult != "VOICEMAIL" || resp.Confidence != 0.95 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.DetectionLatency == nil || *resp.DetectionLatency != 2800 {
		t.Fatalf("unexpected latency: %v", resp.DetectionLatency)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.AMDResult != calls.ResultVoicemail {
		t.Fatalf("expected VOICEMAIL, got %s", got.AMDResult)
	}
	if got.Confidence == nil || *got.Confidence != 0.95 {
		t.Fatalf("unexpected confidence: %v", got.Confidence)
	}

	logs, _ := repo.ListLogs(context.Background(), c.ID)
	// seed entry + amd_detected + machine_detected.
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
	if logs[1].Event != "amd_detected" || logs[2].Event != "machine_detected" {
		t.Fatalf("unexpected events: %s, %s", logs[1].Event, logs[2].Event)
	}
}

func TestAMDCallbackHumanBranch(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000500, 0))
	c := seedCall(t, repo, "CA5")

	_ = postForm(t, r, "/webhooks/twilio/amd", url.Values{
		"CallSid":    {"CA5"},
		"AnsweredBy": {"human"},
	})

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.AMDResult != calls.ResultHuman {
		t.Fatalf("expected HUMAN, got %s", got.AMDResult)
	}
	if got.Confidence == nil || *got.Confidence != 0.85 {
		t.Fatalf("expected base confidence without bonus, got %v", got.Confidence)
	}

	logs, _ := repo.ListLogs(context.Background(), c.ID)
	if logs[len(logs)-1].Event != "human_detected" {
		t.Fatalf("expected human_detected branch, got %s", logs[len(logs)-1].Event)
	}
}

func TestAMDCallbackLastOneWins(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000600, 0))
	c := seedCall(t, repo, "CA6")

	_ = postForm(t, r, "/webhooks/twilio/amd", url.Values{
		"CallSid": {"CA6"}, "AnsweredBy": {"machine_end_beep"}, "MachineDetectionDuration": {"2800"},
	})
	_ = postForm(t, r, "/webhooks/twilio/amd", url.Values{
		"CallSid": {"CA6"}, "AnsweredBy": {"human"},
	})

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.AMDResult != calls.ResultHuman {
		t.Fatalf("expected last callback to win, got %s", got.AMDResult)
	}
	if got.DetectionLatencyMS != nil {
		t.Fatalf("latency must reflect the last callback")
	}

	logs, _ := repo.ListLogs(context.Background(), c.ID)
	// seed entry + exactly two audit entries per AMD callback.
	if len(logs) != 5 {
		t.Fatalf("expected 5 log entries, got %d", len(logs))
	}
}

func TestAMDCallbackUnknownSID(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000700, 0))

	w := postForm(t, r, "/webhooks/twilio/amd", url.Values{
		"CallSid": {"CA404"}, "AnsweredBy": {"human"},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestVoiceCallbackReturnsTwiML(t *testing.T) {
	repo := calls.NewMemoryRepo()
	r := newRouter(repo, time.Unix(1700000800, 0))

	w := postForm(t, r, "/webhooks/twilio/voice", url.Values{
		"CallSid": {"CAanything"}, "CallStatus": {"in-progress"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("expected text/xml, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Say") {
		t.Fatalf("expected Say verb in body: %s", w.Body.String())
	}
	// Stateless: no record consulted, no record created.
	if _, err := repo.GetByProviderSID(context.Background(), "CAanything"); err != calls.ErrNotFound {
		t.Fatalf("voice callback must not touch the store, got %v", err)
	}
}
