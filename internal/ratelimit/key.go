package ratelimit

import (
	"fmt"
	"strings"
)

// KeyForUser builds the limiter key for an authenticated user.
func KeyForUser(userID uint64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("u:%d", userID)
}

// KeyForClient builds the limiter key for an anonymous caller, such as a
// login attempt, identified by its address.
func KeyForClient(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}
