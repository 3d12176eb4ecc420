package presence

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Defaults applied when a client omits device headers.
const (
	DefaultUserAgent  = "Unknown"
	DefaultPlatform   = "Desktop"
	DefaultAppVersion = "1.0.0"
)

// DeviceInfo describes the client that sent a heartbeat.
type DeviceInfo struct {
	UserAgent  string    `json:"user_agent"`
	Platform   string    `json:"platform"`
	AppVersion string    `json:"app_version"`
	IPAddress  string    `json:"ip_address"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceInfoFromRequest reads device headers, filling defaults for missing ones.
func DeviceInfoFromRequest(r *http.Request, clientIP string, now time.Time) DeviceInfo {
	info := DeviceInfo{
		UserAgent:  DefaultUserAgent,
		Platform:   DefaultPlatform,
		AppVersion: DefaultAppVersion,
		IPAddress:  strings.TrimSpace(clientIP),
		Timestamp:  now.UTC(),
	}
	if r == nil {
		return info
	}
	if v := strings.TrimSpace(r.UserAgent()); v != "" {
		info.UserAgent = v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Platform")); v != "" {
		info.Platform = v
	}
	if v := strings.TrimSpace(r.Header.Get("X-App-Version")); v != "" {
		info.AppVersion = v
	}
	return info
}

func (d DeviceInfo) marshal() ([]byte, error) {
	return json.Marshal(d)
}
