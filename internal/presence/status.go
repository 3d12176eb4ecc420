package presence

import (
	"time"

	"github.com/labforge/lims-admin/internal/models"
)

// Bucket thresholds measured from the last heartbeat.
const (
	AwayAfter    = 2 * time.Minute
	OfflineAfter = 10 * time.Minute
)

// Snapshot is the presence-relevant view of a user row.
type Snapshot struct {
	UserID          uint64
	Status          string
	LastHeartbeatAt *time.Time
}

// Transition is a planned status change for one user.
type Transition struct {
	UserID uint64
	From   string
	To     string
}

// Derive maps a heartbeat age to its bucket. A missing heartbeat is offline.
func Derive(lastHeartbeatAt *time.Time, now time.Time) string {
	if lastHeartbeatAt == nil {
		return models.SessionStatusOffline
	}
	age := now.Sub(*lastHeartbeatAt)
	switch {
	case age >= OfflineAfter:
		return models.SessionStatusOffline
	case age >= AwayAfter:
		return models.SessionStatusAway
	default:
		return models.SessionStatusOnline
	}
}

// Plan returns the transitions needed to bring snapshots in line with their
// derived buckets. Rows already in the right bucket are left out.
func Plan(snapshots []Snapshot, now time.Time) []Transition {
	var out []Transition
	for _, snap := range snapshots {
		target := Derive(snap.LastHeartbeatAt, now)
		if target == snap.Status {
			continue
		}
		out = append(out, Transition{UserID: snap.UserID, From: snap.Status, To: target})
	}
	return out
}
