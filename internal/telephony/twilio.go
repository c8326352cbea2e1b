package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"amd-dashboard/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioProvider places calls through the Twilio REST API. It deliberately
// avoids the provider SDK; the calls resource is a single form-encoded POST.
type TwilioProvider struct {
	cfg     config.TwilioConfig
	apiBase string
	httpc   *http.Client
}

func NewTwilioProvider(cfg config.TwilioConfig) *TwilioProvider {
	return &TwilioProvider{
		cfg:     cfg,
		apiBase: twilioAPIBase,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// NewTwilioProviderWithBase is for tests pointing at a stub server.
func NewTwilioProviderWithBase(cfg config.TwilioConfig, apiBase string, httpc *http.Client) *TwilioProvider {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioProvider{cfg: cfg, apiBase: apiBase, httpc: httpc}
}

func (p *TwilioProvider) Name() string { return "twilio" }

type twilioCallResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	amd := p.cfg.AMD

	form := url.Values{}
	form.Set("From", p.cfg.FromNumber)
	form.Set("To", req.To)
	form.Set("Url", req.VoiceURL)
	form.Set("StatusCallback", req.StatusURL)
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}

	form.Set("MachineDetection", amd.MachineDetection)
	form.Set("AsyncAmd", "true")
	form.Set("AsyncAmdStatusCallback", req.AMDStatusURL)
	form.Set("AsyncAmdStatusCallbackMethod", http.MethodPost)
	form.Set("MachineDetectionTimeout", strconv.Itoa(amd.TimeoutSeconds))
	form.Set("MachineDetectionSpeechThreshold", strconv.Itoa(amd.SpeechThresholdMS))
	form.Set("MachineDetectionSpeechEndThreshold", strconv.Itoa(amd.SpeechEndThresholdMS))
	form.Set("MachineDetectionSilenceTimeout", strconv.Itoa(amd.SilenceTimeoutMS))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.apiBase, p.cfg.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return OutboundCallResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := p.httpc.Do(httpReq)
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("%w: reading response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr twilioErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return OutboundCallResult{}, fmt.Errorf("%w: twilio %d (code %d): %s", ErrProvider, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return OutboundCallResult{}, fmt.Errorf("%w: twilio returned %d", ErrProvider, resp.StatusCode)
	}

	var call twilioCallResponse
	if err := json.Unmarshal(body, &call); err != nil {
		return OutboundCallResult{}, fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	if call.SID == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: response missing call sid", ErrProvider)
	}
	return OutboundCallResult{SID: call.SID, Status: call.Status}, nil
}
