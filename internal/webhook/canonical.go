package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The per-type field lists and rendering rules below are a rigid contract
// dictated by Paymob's own signing algorithm. Field order must be reproduced
// verbatim: any reordering silently breaks every verification.

var transactionFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

var tokenFields = []string{
	"card_subtype",
	"created_at",
	"email",
	"id",
	"masked_pan",
	"merchant_id",
	"order_id",
	"token",
}

// ValidationError reports a structurally invalid callback, as opposed to a
// forged one.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "webhook: " + e.Reason }

// Canonical rebuilds the exact string Paymob signed for the given callback
// type. TypeUndefined yields an empty string.
func Canonical(t Type, payload map[string]any) (string, error) {
	switch t {
	case TypeTransaction:
		return concatFields(payload, transactionFields), nil
	case TypeToken:
		return concatFields(payload, tokenFields), nil
	case TypeSubscription:
		return subscriptionCanonical(payload)
	default:
		return "", nil
	}
}

// concatFields renders each field of the payload's obj structure in order and
// joins them with no separator.
func concatFields(payload map[string]any, fields []string) string {
	obj, _ := payload["obj"].(map[string]any)
	var b strings.Builder
	for _, field := range fields {
		value, present := lookup(obj, field)
		b.WriteString(render(value, present))
	}
	return b.String()
}

// lookup resolves a field name with at most one level of dot-path nesting.
func lookup(obj map[string]any, field string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if head, rest, nested := strings.Cut(field, "."); nested {
		inner, _ := obj[head].(map[string]any)
		if inner == nil {
			return nil, false
		}
		value, ok := inner[rest]
		return value, ok
	}
	value, ok := obj[field]
	return value, ok
}

// render stringifies a field value: absent -> "", null -> "null", booleans
// lowercase, integral numbers with no decimal point, everything else via its
// natural string form.
func render(value any, present bool) string {
	if !present {
		return ""
	}
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(value)
	}
}

// subscriptionCanonical builds "<trigger_type>for<subscription_data.id>".
// Both parts are required: a missing one marks a malformed callback, not an
// unverifiable one.
func subscriptionCanonical(payload map[string]any) (string, error) {
	trigger := render(payload["trigger_type"], payload["trigger_type"] != nil)
	sub, _ := payload["subscription_data"].(map[string]any)
	var id string
	if sub != nil {
		value, ok := sub["id"]
		id = render(value, ok && value != nil)
	}
	if trigger == "" || id == "" {
		return "", &ValidationError{Reason: "not a valid subscription callback"}
	}
	return trigger + "for" + id, nil
}
