package telephony

import (
	"math"
	"testing"

	"amd-dashboard/internal/calls"
)

func TestMapCallStatus(t *testing.T) {
	cases := map[string]calls.CallStatus{
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
	for in, want := range cases {
		if got := MapCallStatus(in); got != want {
			t.Fatalf("MapCallStatus(%q) = %s, want %s", in, got, want)
		}
	}
	// Closed-world fallback.
	for _, in := range []string{"", "exploded", "COMPLETED"} {
		if got := MapCallStatus(in); got != calls.StatusFailed {
			t.Fatalf("MapCallStatus(%q) = %s, want FAILED", in, got)
		}
	}
}

func TestMapAnsweredBy(t *testing.T) {
	cases := map[string]calls.AMDResult{
		"human":               calls.ResultHuman,
		"machine_start":       calls.ResultMachine,
		"machine_end_silence": calls.ResultMachine,
		"machine_end_other":   calls.ResultMachine,
		"machine_end_beep":    calls.ResultVoicemail,
		"fax":                 calls.ResultFax,
		"unknown":             calls.ResultUnknown,
	}
	for in, want := range cases {
		if got := MapAnsweredBy(in); got != want {
			t.Fatalf("MapAnsweredBy(%q) = %s, want %s", in, got, want)
		}
	}
	if got := MapAnsweredBy(""); got != calls.ResultUnknown {
		t.Fatalf("empty input must map to UNKNOWN, got %s", got)
	}
	if got := MapAnsweredBy("robot"); got != calls.ResultUnknown {
		t.Fatalf("unrecognized input must map to UNKNOWN, got %s", got)
	}
}

func TestConfidenceBases(t *testing.T) {
	cases := map[string]float64{
		"human":               0.85,
		"machine_start":       0.80,
		"machine_end_beep":    0.90,
		"machine_end_silence": 0.75,
		"machine_end_other":   0.70,
		"fax":                 0.95,
		"unknown":             0.50,
		"something_else":      0.50,
	}
	for in, want := range cases {
		if got := Confidence(in, nil); math.Abs(got-want) > 1e-9 {
			t.Fatalf("Confidence(%q, nil) = %v, want %v", in, got, want)
		}
	}
}

func TestConfidenceFastDetectionBonus(t *testing.T) {
	fast := 2800
	if got := Confidence("machine_end_beep", &fast); math.Abs(got-0.95) > 1e-9 {
		t.Fatalf("expected 0.95 with fast-detection bonus, got %v", got)
	}

	// The 3000ms threshold is exclusive.
	exact := 3000
	if got := Confidence("machine_end_beep", &exact); math.Abs(got-0.90) > 1e-9 {
		t.Fatalf("expected no bonus at exactly 3000ms, got %v", got)
	}

	slow := 4500
	if got := Confidence("human", &slow); math.Abs(got-0.85) > 1e-9 {
		t.Fatalf("expected base without bonus, got %v", got)
	}
}

func TestConfidenceIsCapped(t *testing.T) {
	fast := 100
	if got := Confidence("fax", &fast); got > 1.0 || math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected cap at 1.0, got %v", got)
	}
}
