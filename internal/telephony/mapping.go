package telephony

import "amd-dashboard/internal/calls"

// Pure translation tables between Twilio vocabulary and the internal enums.
// Both maps are closed-world: anything unrecognized falls through to a safe
// default instead of erroring.

var statusMap = map[string]calls.CallStatus{
	"queued":      calls.StatusInitiated,
	"initiated":   calls.StatusInitiated,
	"ringing":     calls.StatusRinging,
	"in-progress": calls.StatusInProgress,
	"completed":   calls.StatusCompleted,
	"busy":        calls.StatusBusy,
	"failed":      calls.StatusFailed,
	"no-answer":   calls.StatusNoAnswer,
	"canceled":    calls.StatusCanceled,
}

// MapCallStatus translates a provider call status. Unrecognized input maps to
// FAILED rather than erroring.
func MapCallStatus(twilioStatus string) calls.CallStatus {
	if s, ok := statusMap[twilioStatus]; ok {
		return s
	}
	return calls.StatusFailed
}

var answeredByMap = map[string]calls.AMDResult{
	"human":               calls.ResultHuman,
	"machine_start":       calls.ResultMachine,
	"machine_end_beep":    calls.ResultVoicemail,
	"machine_end_silence": calls.ResultMachine,
	"machine_end_other":   calls.ResultMachine,
	"fax":                 calls.ResultFax,
	"unknown":             calls.ResultUnknown,
}

// MapAnsweredBy translates Twilio's AnsweredBy classification. Missing or
// unrecognized values map to UNKNOWN.
func MapAnsweredBy(answeredBy string) calls.AMDResult {
	if r, ok := answeredByMap[answeredBy]; ok {
		return r
	}
	return calls.ResultUnknown
}

var confidenceBase = map[string]float64{
	"human":               0.85,
	"machine_start":       0.80,
	"machine_end_beep":    0.90,
	"machine_end_silence": 0.75,
	"machine_end_other":   0.70,
	"fax":                 0.95,
	"unknown":             0.50,
}

// fastDetectionMS is the exclusive bound under which a detection earns the
// quick-detection bonus.
const fastDetectionMS = 3000

// Confidence estimates a display confidence for an AnsweredBy value: a fixed
// base per classification, plus 0.05 when detection finished in under 3000ms,
// capped at 1.0. This is a heuristic display number, not a calibrated
// probability.
func Confidence(answeredBy string, detectionMS *int) float64 {
	base, ok := confidenceBase[answeredBy]
	if !ok {
		base = 0.50
	}
	if detectionMS != nil && *detectionMS > 0 && *detectionMS < fastDetectionMS {
		base += 0.05
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}
