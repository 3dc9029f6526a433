package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidEvents(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		check   func(t *testing.T, event *Event)
	}{
		{
			name:    "superseded by",
			payload: `{"type":"SUPERSEDED_BY","old_hash":"h1","new_hash":"h2","tenant":"t1"}`,
			check: func(t *testing.T, event *Event) {
				assert.Equal(t, TypeSupersededBy, event.Type)
				assert.Equal(t, "h1", event.OldHash)
				assert.Equal(t, "h2", event.NewHash)
				assert.Equal(t, "t1", event.Tenant)
			},
		},
		{
			name:    "revoke capsule",
			payload: `{"type":"REVOKE_CAPSULE","capsule_id":"cap-9","tenant":"t1"}`,
			check: func(t *testing.T, event *Event) {
				assert.Equal(t, TypeRevokeCapsule, event.Type)
				assert.Equal(t, "cap-9", event.CapsuleID)
			},
		},
		{
			name:    "invalidate tenant",
			payload: `{"type":"INVALIDATE_TENANT","tenant":"t1"}`,
			check: func(t *testing.T, event *Event) {
				assert.Equal(t, TypeInvalidateTenant, event.Type)
				assert.Equal(t, "t1", event.Tenant)
			},
		},
		{
			name:    "update ttl",
			payload: `{"type":"UPDATE_TTL","pattern":"t1:*","new_ttl_seconds":60,"tenant":"t1"}`,
			check: func(t *testing.T, event *Event) {
				assert.Equal(t, TypeUpdateTTL, event.Type)
				assert.Equal(t, "t1:*", event.Pattern)
				assert.Equal(t, int64(60), event.NewTTLSeconds)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := Decode([]byte(tc.payload))
			require.NoError(t, err)
			tc.check(t, event)
		})
	}
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"not utf8", []byte{0xff, 0xfe, 0xfd}},
		{"not json", []byte("{{{{")},
		{"unknown type", []byte(`{"type":"PURGE_EVERYTHING","tenant":"t1"}`)},
		{"missing type", []byte(`{"tenant":"t1"}`)},
		{"superseded missing new_hash", []byte(`{"type":"SUPERSEDED_BY","old_hash":"h1","tenant":"t1"}`)},
		{"superseded missing tenant", []byte(`{"type":"SUPERSEDED_BY","old_hash":"h1","new_hash":"h2"}`)},
		{"revoke missing capsule", []byte(`{"type":"REVOKE_CAPSULE","tenant":"t1"}`)},
		{"invalidate missing tenant", []byte(`{"type":"INVALIDATE_TENANT"}`)},
		{"update ttl missing pattern", []byte(`{"type":"UPDATE_TTL","tenant":"t1"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.payload)
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Event{
		Type:    TypeSupersededBy,
		OldHash: "h1",
		NewHash: "h2",
		Tenant:  "t1",
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
