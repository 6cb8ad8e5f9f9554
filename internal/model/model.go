package model

import (
	"time"

	"github.com/bytedance/sonic"
)

// AgentConfig is the persisted update-manager configuration. The hint, when
// present, is a trusted overwrite of the stored current version.
type AgentConfig struct {
	BaseURL         string `json:"baseUrl"`
	Hostname        string `json:"hostname"`
	ApplicationPath string `json:"applicationPath"`
}

type CheckResult struct {
	HasUpdate bool   `json:"hasUpdate"`
	Version   string `json:"version"`
}

// Progress is reported per completed file as
// (downloadedCount, changedTotal, skippedTotal).
type Progress struct {
	Downloaded int `json:"downloaded"`
	Total      int `json:"total"`
	Skipped    int `json:"skipped"`
}

type VersionSummary struct {
	CurrentVersion      string    `json:"currentVersion"`
	DownloadedVersion   string    `json:"downloadedVersion,omitempty"`
	PreviousVersion     string    `json:"previousVersion,omitempty"`
	PendingSwapVersion  string    `json:"pendingSwapVersion,omitempty"`
	LastCheck           time.Time `json:"lastCheck,omitempty"`
	BlockingEnabled     bool      `json:"blockingEnabled"`
	CrashDetectionArmed bool      `json:"crashDetectionArmed"`
}

// PushPayload is the update trigger carried inside a push notification.
// Notifications without the recognized field are not update notifications.
type PushPayload struct {
	Version   string `json:"version"`
	Immediate bool   `json:"immediate"`
}

// PushField is the notification key a payload must carry to be recognized.
const PushField = "otaUpdate"

// ParsePushPayload extracts the update trigger from a raw notification.
// The payload arrives either as a JSON string or as an already-decoded
// object; anything else, or a missing field, returns nil.
func ParsePushPayload(userInfo map[string]any) *PushPayload {
	raw, ok := userInfo[PushField]
	if !ok {
		return nil
	}

	payload := new(PushPayload)
	switch v := raw.(type) {
	case string:
		if err := sonic.UnmarshalString(v, payload); err != nil {
			return nil
		}
	default:
		buf, err := sonic.Marshal(v)
		if err != nil {
			return nil
		}
		if err := sonic.Unmarshal(buf, payload); err != nil {
			return nil
		}
	}
	return payload
}
