package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePushPayload(t *testing.T) {

	testCases := []struct {
		Name     string
		UserInfo map[string]any
		Expected *PushPayload
	}{
		{
			Name: "payload_as_json_string",
			UserInfo: map[string]any{
				PushField: `{"version":"v42","immediate":true}`,
			},
			Expected: &PushPayload{Version: "v42", Immediate: true},
		},
		{
			Name: "payload_as_decoded_object",
			UserInfo: map[string]any{
				PushField: map[string]any{"version": "v42"},
			},
			Expected: &PushPayload{Version: "v42"},
		},
		{
			Name: "not_an_update_notification",
			UserInfo: map[string]any{
				"aps": map[string]any{"alert": "hello"},
			},
			Expected: nil,
		},
		{
			Name: "malformed_payload_string",
			UserInfo: map[string]any{
				PushField: "{not json",
			},
			Expected: nil,
		},
		{
			Name:     "empty_user_info",
			UserInfo: map[string]any{},
			Expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Expected, ParsePushPayload(tc.UserInfo))
		})
	}
}

func TestVersionedPath(t *testing.T) {
	require.Equal(t, "scripts/app.js?abc123", VersionedPath("scripts/app.js", "abc123"))
}
