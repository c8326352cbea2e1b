package calls

import "time"

// Call is one outbound dial attempt and the single source of truth for its
// lifecycle. It is created once in StatusInitiated and afterwards mutated only
// by webhook reconciliation (plus the one provider-SID assignment right after
// the outbound request succeeds). Rows are never deleted by the service.
//
// Provider-specific state lives in TwilioCallSID / TwilioStatus; the rest of
// the model is provider-agnostic.
type Call struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	PhoneNumber string      `json:"phone_number" db:"phone_number"`
	AMDStrategy AMDStrategy `json:"amd_strategy" db:"amd_strategy"`
	Direction   Direction   `json:"call_direction" db:"call_direction"`

	Status CallStatus `json:"call_status" db:"call_status"`

	// TwilioCallSID is set exactly once, is unique across all rows, and is the
	// lookup key for every subsequent callback. Empty means the outbound request
	// never succeeded (an observable orphan, not retried).
	TwilioCallSID string `json:"twilio_call_sid,omitempty" db:"twilio_call_sid"`
	// TwilioStatus mirrors the verbatim provider status of the last callback.
	TwilioStatus string `json:"twilio_status,omitempty" db:"twilio_status"`

	AMDResult AMDResult `json:"amd_result" db:"amd_result"`
	// Confidence is a display heuristic in [0,1], not a calibrated probability.
	Confidence         *float64 `json:"confidence,omitempty" db:"confidence"`
	DetectionLatencyMS *int     `json:"detection_latency,omitempty" db:"detection_latency"`

	DurationSeconds int `json:"duration" db:"duration"`

	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`
	// Metadata holds an opaque JSON diagnostic payload.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	StatusInitiated  CallStatus = "INITIATED"
	StatusRinging    CallStatus = "RINGING"
	StatusInProgress CallStatus = "IN_PROGRESS"
	StatusCompleted  CallStatus = "COMPLETED"
	StatusFailed     CallStatus = "FAILED"
	StatusBusy       CallStatus = "BUSY"
	StatusNoAnswer   CallStatus = "NO_ANSWER"
	StatusCanceled   CallStatus = "CANCELED"
)

// Terminal reports whether the status ends the call lifecycle.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// AMDStrategy is a nominal tag. Only StrategyTwilioNative has a working
// implementation; the others are enumerated so requests carrying them fail
// with an explicit "not implemented" instead of a vocabulary error.
type AMDStrategy string

const (
	StrategyTwilioNative AMDStrategy = "TWILIO_NATIVE"
	StrategyJambonz      AMDStrategy = "JAMBONZ"
	StrategyHuggingFace  AMDStrategy = "HUGGINGFACE"
	StrategyGeminiFlash  AMDStrategy = "GEMINI_FLASH"
)

// ParseStrategy validates a strategy tag against the closed enumeration.
func ParseStrategy(s string) (AMDStrategy, bool) {
	switch AMDStrategy(s) {
	case StrategyTwilioNative, StrategyJambonz, StrategyHuggingFace, StrategyGeminiFlash:
		return AMDStrategy(s), true
	default:
		return "", false
	}
}

type AMDResult string

const (
	ResultHuman     AMDResult = "HUMAN"
	ResultMachine   AMDResult = "MACHINE"
	ResultVoicemail AMDResult = "VOICEMAIL"
	ResultFax       AMDResult = "FAX"
	ResultUnknown   AMDResult = "UNKNOWN"
)

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// LogEntry is one row of the per-call audit trail. Entries are append-only and
// immutable; the trail records provider communication, not derived state, so
// duplicate callbacks produce duplicate entries on purpose.
type LogEntry struct {
	ID      string   `json:"id" db:"id"`
	CallID  string   `json:"call_id" db:"call_id"`
	Event   string   `json:"event" db:"event"`
	Message string   `json:"message" db:"message"`
	Level   LogLevel `json:"level" db:"level"`
	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type LogLevel string

const (
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// StatusUpdate is one status callback applied to a record. Status, RawStatus
// and DurationSeconds overwrite unconditionally (last delivered wins);
// AnsweredAt and EndedAt are first-write-only and the store must leave an
// already-set value untouched.
type StatusUpdate struct {
	Status    CallStatus
	RawStatus string

	// DurationSeconds overwrites the stored value when present.
	DurationSeconds *int

	// AnsweredAt is the stamp candidate for the transition into IN_PROGRESS.
	AnsweredAt *time.Time
	// EndedAt is the stamp candidate for a terminal status.
	EndedAt *time.Time
}

// AMDUpdate is one AMD callback applied to a record. A second callback simply
// replaces the first; the store does not assume at-most-once delivery.
type AMDUpdate struct {
	Result             AMDResult
	Confidence         float64
	DetectionLatencyMS *int
	// Metadata snapshots the raw callback inputs as JSON.
	Metadata string
}

// ListFilter narrows the dashboard call table.
type ListFilter struct {
	UserID   string
	Status   CallStatus
	Result   AMDResult
	Strategy AMDStrategy

	Limit  int
	Offset int
}

// Summary aggregates the call table for the dashboard header.
type Summary struct {
	TotalCalls int `json:"total_calls"`

	ByStatus map[CallStatus]int `json:"by_status"`
	ByResult map[AMDResult]int  `json:"by_result"`

	TotalDurationSeconds int `json:"total_duration_seconds"`
}
