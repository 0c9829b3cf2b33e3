package telephony

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ControlPlane is the provider API that binds phone numbers to assistants.
// It is the external system of record for routing; callers re-read a binding
// before changing it.
//
// Rules:
// - No provider HTTP calls outside this package.
// - SetAssistant with the same target twice must be safe; the idempotency key
//   identifies the target state, not the attempt.
type ControlPlane interface {
	GetPhoneNumber(ctx context.Context, providerNumberID string) (Binding, error)
	// SetAssistant binds assistantID, or unbinds when assistantID is "".
	SetAssistant(ctx context.Context, providerNumberID, assistantID, idempotencyKey string) (Binding, error)
}

// Binding is the provider's view of one phone number.
type Binding struct {
	ProviderNumberID string `json:"id"`
	Number           string `json:"number,omitempty"`
	// AssistantID is empty when nothing is bound.
	AssistantID string `json:"assistantId,omitempty"`
}

func (b Binding) Bound() bool { return b.AssistantID != "" }

var (
	ErrNotFound        = errors.New("telephony: phone number not found")
	ErrInvalidArgument = errors.New("telephony: invalid argument")
	// ErrUnavailable wraps failures that survived every retry.
	ErrUnavailable = errors.New("telephony: control plane unavailable")
	// ErrBindingMismatch means a write was acknowledged but the number is not
	// in the requested state, e.g. a cached response replayed for a reused key.
	ErrBindingMismatch = errors.New("telephony: binding not applied")
)

// IdempotencyKey derives the key for driving a number to a target state.
// The same workspace, number and target always produce the same key.
func IdempotencyKey(workspaceID, phoneNumberID, assistantID string) string {
	target := "unbound"
	if assistantID != "" {
		target = "bound:" + assistantID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{workspaceID, phoneNumberID, target}, "|")))
	return hex.EncodeToString(sum[:])
}
