// Package events subscribes to the invalidation stream and purges cache
// records that match. Delivery is best-effort and at-least-once; every
// handler is idempotent, so duplicates are harmless.
package events

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Type discriminates the closed set of invalidation events.
type Type string

const (
	// TypeSupersededBy announces that an artifact hash has been replaced.
	TypeSupersededBy Type = "SUPERSEDED_BY"
	// TypeRevokeCapsule revokes a knowledge capsule and its artifacts.
	TypeRevokeCapsule Type = "REVOKE_CAPSULE"
	// TypeInvalidateTenant clears every record for a tenant.
	TypeInvalidateTenant Type = "INVALIDATE_TENANT"
	// TypeUpdateTTL is recognized but deliberately not enforced.
	TypeUpdateTTL Type = "UPDATE_TTL"
)

// Event is the decoded form of one bus message.
type Event struct {
	Type Type `json:"type"`

	// SUPERSEDED_BY
	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`

	// REVOKE_CAPSULE
	CapsuleID string `json:"capsule_id,omitempty"`

	// UPDATE_TTL
	Pattern       string `json:"pattern,omitempty"`
	NewTTLSeconds int64  `json:"new_ttl_seconds,omitempty"`

	// All types except none carry the tenant scope.
	Tenant string `json:"tenant,omitempty"`
}

// Decode parses and validates one event payload. Non-UTF-8 bytes, unknown
// types, and missing fields are errors; callers log and skip them.
func Decode(payload []byte) (*Event, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("event payload is not valid UTF-8")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	switch event.Type {
	case TypeSupersededBy:
		if event.OldHash == "" || event.NewHash == "" || event.Tenant == "" {
			return nil, fmt.Errorf("SUPERSEDED_BY requires old_hash, new_hash, and tenant")
		}
	case TypeRevokeCapsule:
		if event.CapsuleID == "" || event.Tenant == "" {
			return nil, fmt.Errorf("REVOKE_CAPSULE requires capsule_id and tenant")
		}
	case TypeInvalidateTenant:
		if event.Tenant == "" {
			return nil, fmt.Errorf("INVALIDATE_TENANT requires tenant")
		}
	case TypeUpdateTTL:
		if event.Pattern == "" || event.Tenant == "" {
			return nil, fmt.Errorf("UPDATE_TTL requires pattern and tenant")
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
	return &event, nil
}

// Encode serializes an event for publishing.
func Encode(event *Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	return data, nil
}
