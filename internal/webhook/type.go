// Package webhook verifies the authenticity of Paymob payment-status
// callbacks: it classifies the payload, rebuilds the exact byte string the
// provider signed and checks it against the presented HMAC signature.
package webhook

import (
	"fmt"
	"strings"
)

// Type is the semantic kind of an inbound callback, determined solely from
// the payload shape, never from the caller.
type Type int

const (
	// TypeUndefined marks a payload whose kind could not be determined.
	// It is terminal: no canonical string exists and verification fails.
	TypeUndefined Type = iota
	// TypeTransaction is a payment transaction status callback.
	TypeTransaction
	// TypeToken is a card tokenisation callback.
	TypeToken
	// TypeSubscription is a subscription lifecycle callback.
	TypeSubscription
)

func (t Type) String() string {
	switch t {
	case TypeTransaction:
		return "transaction"
	case TypeToken:
		return "token"
	case TypeSubscription:
		return "subscription"
	default:
		return "undefined"
	}
}

// Classify determines the callback type. An explicit non-empty "type" marker
// is authoritative; otherwise the presence of a subscription_data structure
// classifies the payload as a subscription callback.
func Classify(payload map[string]any) Type {
	if raw, ok := payload["type"]; ok && raw != nil {
		if marker := strings.ToLower(strings.TrimSpace(fmt.Sprint(raw))); marker != "" {
			switch marker {
			case "transaction":
				return TypeTransaction
			case "token":
				return TypeToken
			case "subscription":
				return TypeSubscription
			default:
				return TypeUndefined
			}
		}
	}
	if sub, ok := payload["subscription_data"].(map[string]any); ok && len(sub) > 0 {
		return TypeSubscription
	}
	return TypeUndefined
}
