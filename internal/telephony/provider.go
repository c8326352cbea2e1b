package telephony

import (
	"context"
	"errors"
)

// ErrProvider marks a failed outbound request at the provider boundary.
// The underlying provider message is wrapped alongside it.
var ErrProvider = errors.New("telephony: provider request failed")

// Provider defines the provider-agnostic interface used by business logic.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; raw provider vocabulary
//   is translated in mapping.go, never leaked upward.
type Provider interface {
	Name() string

	// CreateCall asks the provider to place one outbound call with async AMD
	// enabled. The provider reports progress via the given callback URLs.
	CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

// OutboundCallRequest carries everything the provider needs to place a call.
// The caller-id number and AMD tuning come from the adapter's fixed config.
type OutboundCallRequest struct {
	// To is the destination in E.164.
	To string

	// VoiceURL serves the in-call voice instructions.
	VoiceURL string
	// StatusURL receives lifecycle status callbacks.
	StatusURL string
	// AMDStatusURL receives the async AMD result callback.
	AMDStatusURL string
}

// OutboundCallResult is the provider's synchronous acknowledgment.
type OutboundCallResult struct {
	// SID is the provider's unique call identifier.
	SID string
	// Status is the provider-native initial status (e.g. "queued").
	Status string
}
