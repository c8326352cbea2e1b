package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"amd-dashboard/internal/auth"
	"amd-dashboard/internal/calls"
	"amd-dashboard/internal/telephony"
	"amd-dashboard/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrUnauthorized means no caller identity was present. Nothing is
	// persisted in that case.
	ErrUnauthorized = errors.New("dialer: unauthorized")

	// ErrStrategyNotImplemented rejects strategy tags that are enumerated but
	// have no working detection path yet.
	ErrStrategyNotImplemented = errors.New("dialer: only TWILIO_NATIVE strategy is currently supported")

	// ErrTooManyCalls means the per-user concurrent-dial cap was hit.
	ErrTooManyCalls = errors.New("dialer: too many concurrent calls")
)

// FieldViolation is one user-correctable problem with the dial request.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Field+": "+v.Message)
	}
	return "dialer: invalid request: " + strings.Join(msgs, "; ")
}

type DialRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	AMDStrategy string `json:"amdStrategy"`
}

type DialResult struct {
	CallID        string `json:"callId"`
	TwilioCallSID string `json:"twilioCallSid"`
	// Status is the provider-native initial status.
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Service validates dial requests, creates the call record, and issues the
// outbound call through the provider. After the provider SID is assigned,
// ownership of the record passes to webhook reconciliation.
type Service struct {
	repo     calls.Repository
	provider telephony.Provider
	limiter  *Limiter
	baseURL  string
	clock    func() time.Time
}

func NewService(repo calls.Repository, provider telephony.Provider, limiter *Limiter, baseURL string) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		limiter:  limiter,
		baseURL:  strings.TrimRight(baseURL, "/"),
		clock:    time.Now,
	}
}

// SetClock overrides time stamping in tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Service) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	userID, err := auth.UserID(ctx)
	if err != nil {
		return DialResult{}, ErrUnauthorized
	}

	var violations []FieldViolation
	if telephony.DigitCount(req.PhoneNumber) < 10 {
		violations = append(violations, FieldViolation{Field: "phoneNumber", Message: "Phone number must be at least 10 digits"})
	}
	strategy, ok := calls.ParseStrategy(req.AMDStrategy)
	if !ok {
		violations = append(violations, FieldViolation{Field: "amdStrategy", Message: "Unknown AMD strategy"})
	}
	if len(violations) > 0 {
		return DialResult{}, &ValidationError{Violations: violations}
	}
	if strategy != calls.StrategyTwilioNative {
		return DialResult{}, ErrStrategyNotImplemented
	}

	to := telephony.FormatE164(req.PhoneNumber)

	acquired, err := s.limiter.Acquire(ctx, userID)
	if err != nil {
		return DialResult{}, fmt.Errorf("dialer: acquiring dial slot: %w", err)
	}
	if !acquired {
		return DialResult{}, ErrTooManyCalls
	}

	record, err := s.repo.Create(ctx, calls.Call{
		ID:          uuid.NewString(),
		UserID:      userID,
		PhoneNumber: to,
		AMDStrategy: strategy,
		Direction:   calls.DirectionOutbound,
		Status:      calls.StatusInitiated,
	}, calls.LogEntry{
		ID:      uuid.NewString(),
		Event:   "call_initiated",
		Message: fmt.Sprintf("Initiating call to %s with %s", to, strategy),
		Level:   calls.LevelInfo,
	})
	if err != nil {
		_ = s.limiter.Release(ctx, userID)
		return DialResult{}, fmt.Errorf("dialer: creating call record: %w", err)
	}

	res, err := s.provider.CreateCall(ctx, telephony.OutboundCallRequest{
		To:           to,
		VoiceURL:     s.baseURL + "/webhooks/twilio/voice",
		StatusURL:    s.baseURL + "/webhooks/twilio/status",
		AMDStatusURL: s.baseURL + "/webhooks/twilio/amd",
	})
	if err != nil {
		// The record stays in INITIATED with no provider SID: an observable
		// orphan, not retried. The failure itself still lands in the trail.
		_ = s.limiter.Release(ctx, userID)
		s.appendLog(ctx, record.ID, "call_failed", "Provider call creation failed: "+err.Error(), calls.LevelError, "")
		return DialResult{}, err
	}

	if err := s.repo.AssignProviderSID(ctx, record.ID, res.SID, calls.StatusRinging); err != nil {
		return DialResult{}, fmt.Errorf("dialer: assigning provider sid: %w", err)
	}
	s.appendLog(ctx, record.ID, "twilio_call_created", "Twilio call SID: "+res.SID, calls.LevelInfo,
		mustJSON(map[string]any{"twilioSid": res.SID, "status": res.Status}))

	return DialResult{
		CallID:        record.ID,
		TwilioCallSID: res.SID,
		Status:        res.Status,
		Message:       "Call initiated successfully",
	}, nil
}

// appendLog is best-effort: audit failures must not fail the dial flow once
// the provider call exists.
func (s *Service) appendLog(ctx context.Context, callID, event, message string, level calls.LogLevel, metadata string) {
	err := s.repo.AppendLog(ctx, calls.LogEntry{
		ID:       uuid.NewString(),
		CallID:   callID,
		Event:    event,
		Message:  message,
		Level:    level,
		Metadata: metadata,
	})
	if err != nil {
		logger.From(ctx).Error("call log append failed", "call_id", callID, "event", event, "err", err)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
