package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"amd-dashboard/internal/config"
)

func testTwilioConfig() config.TwilioConfig {
	return config.TwilioConfig{
		AccountSID: "AC0000",
		AuthToken:  "token",
		FromNumber: "+15550001111",
		BaseURL:    "https://amd.example.com",
		AMD: config.AMDTuning{
			MachineDetection:     "Enable",
			TimeoutSeconds:       30,
			SpeechThresholdMS:    2400,
			SpeechEndThresholdMS: 1200,
			SilenceTimeoutMS:     5000,
		},
	}
}

func TestTwilioCreateCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC0000/Calls.json" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC0000" || pass != "token" {
			t.Fatalf("expected basic auth with account credentials")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("To"); got != "+18007742678" {
			t.Fatalf("unexpected To: %q", got)
		}
		if got := r.PostFormValue("From"); got != "+15550001111" {
			t.Fatalf("unexpected From: %q", got)
		}
		if got := r.PostFormValue("MachineDetection"); got != "Enable" {
			t.Fatalf("unexpected MachineDetection: %q", got)
		}
		if got := r.PostFormValue("AsyncAmd"); got != "true" {
			t.Fatalf("unexpected AsyncAmd: %q", got)
		}
		if got := r.PostFormValue("MachineDetectionSpeechThreshold"); got != "2400" {
			t.Fatalf("unexpected speech threshold: %q", got)
		}
		if got := r.PostForm["StatusCallbackEvent"]; len(got) != 4 {
			t.Fatalf("expected 4 status callback events, got %v", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	defer srv.Close()

	p := NewTwilioProviderWithBase(testTwilioConfig(), srv.URL, srv.Client())
	res, err := p.CreateCall(context.Background(), OutboundCallRequest{
		To:           "+18007742678",
		VoiceURL:     "https://amd.example.com/webhooks/twilio/voice",
		StatusURL:    "https://amd.example.com/webhooks/twilio/status",
		AMDStatusURL: "https://amd.example.com/webhooks/twilio/amd",
	})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if res.SID != "CA123" || res.Status != "queued" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTwilioCreateCallProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer srv.Close()

	p := NewTwilioProviderWithBase(testTwilioConfig(), srv.URL, srv.Client())
	_, err := p.CreateCall(context.Background(), OutboundCallRequest{To: "+10"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}
