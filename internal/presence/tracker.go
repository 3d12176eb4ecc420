package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const reconcileBatchSize = 500

// Report is the presence view of a single user.
type Report struct {
	UserID          uint64          `json:"user_id"`
	Status          string          `json:"status"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat"`
	IsOnline        bool            `json:"is_online"`
	IsAway          bool            `json:"is_away"`
	ShouldBeOffline bool            `json:"should_be_offline"`
	ServerTime      time.Time       `json:"server_time"`
	DeviceInfo      json.RawMessage `json:"device_info,omitempty"`
}

// ReconcileResult counts the transitions written by one sweep, by target bucket.
type ReconcileResult struct {
	Examined  int `json:"examined"`
	ToOnline  int `json:"to_online"`
	ToAway    int `json:"to_away"`
	ToOffline int `json:"to_offline"`
}

// Changed returns the number of rows that moved.
func (r ReconcileResult) Changed() int {
	return r.ToOnline + r.ToAway + r.ToOffline
}

// OnlineUser is an entry of the online listing.
type OnlineUser struct {
	ID              uint64          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	UserType        string          `json:"user_type"`
	UserTypeLabel   string          `json:"user_type_label"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat"`
	DeviceInfo      json.RawMessage `json:"device_info,omitempty"`
}

// OnlineList is the result of OnlineUsers.
type OnlineList struct {
	Users      []OnlineUser `json:"online_users"`
	Total      int          `json:"total_online"`
	ServerTime time.Time    `json:"server_time"`
}

// Summary counts users per stored status.
type Summary struct {
	Online  int64 `json:"online"`
	Away    int64 `json:"away"`
	Offline int64 `json:"offline"`
	Total   int64 `json:"total"`
}

// Tracker records heartbeats and keeps stored session statuses current.
type Tracker struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTracker constructs a presence tracker.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// Heartbeat marks the user online and records the reporting device.
func (t *Tracker) Heartbeat(ctx context.Context, userID uint64, device *DeviceInfo) (Report, error) {
	now := t.now().UTC()
	updates := map[string]any{
		"last_heartbeat_at": now,
		"session_status":    models.SessionStatusOnline,
	}
	if device != nil {
		raw, err := device.marshal()
		if err != nil {
			return Report{}, fmt.Errorf("presence: encode device info: %w", err)
		}
		updates["device_info"] = datatypes.JSON(raw)
	}
	res := t.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return Report{}, fmt.Errorf("presence: heartbeat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Report{}, apperr.NotFound("user not found")
	}
	return t.Status(ctx, userID)
}

// Status reports the stored status and the buckets derived from the last heartbeat.
func (t *Tracker) Status(ctx context.Context, userID uint64) (Report, error) {
	var user models.User
	err := t.db.WithContext(ctx).
		Select("id", "session_status", "last_heartbeat_at", "device_info").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Report{}, apperr.NotFound("user not found")
		}
		return Report{}, fmt.Errorf("presence: status: %w", err)
	}
	now := t.now().UTC()
	bucket := Derive(user.LastHeartbeatAt, now)
	report := Report{
		UserID:          user.ID,
		Status:          user.SessionStatus,
		LastHeartbeatAt: user.LastHeartbeatAt,
		IsOnline:        bucket == models.SessionStatusOnline,
		IsAway:          bucket == models.SessionStatusAway,
		ShouldBeOffline: bucket == models.SessionStatusOffline,
		ServerTime:      now,
	}
	if len(user.DeviceInfo) > 0 {
		report.DeviceInfo = json.RawMessage(user.DeviceInfo)
	}
	return report, nil
}

// SetOffline forces the user's stored status to offline.
func (t *Tracker) SetOffline(ctx context.Context, userID uint64) error {
	res := t.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("session_status", models.SessionStatusOffline)
	if res.Error != nil {
		return fmt.Errorf("presence: set offline: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// Reconcile recomputes every user's bucket at now and writes only the rows
// whose stored status differs. A heartbeat landing between the read and the
// write may be overwritten; the next heartbeat restores it.
func (t *Tracker) Reconcile(ctx context.Context, now time.Time) (ReconcileResult, error) {
	var snapshots []Snapshot
	err := t.db.WithContext(ctx).Model(&models.User{}).
		Select("id AS user_id", "session_status AS status", "last_heartbeat_at").
		Order("id ASC").
		Scan(&snapshots).Error
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("presence: load snapshots: %w", err)
	}

	result := ReconcileResult{Examined: len(snapshots)}
	byTarget := make(map[string][]uint64)
	for _, tr := range Plan(snapshots, now) {
		byTarget[tr.To] = append(byTarget[tr.To], tr.UserID)
	}

	for _, target := range []string{models.SessionStatusOffline, models.SessionStatusAway, models.SessionStatusOnline} {
		ids := byTarget[target]
		for start := 0; start < len(ids); start += reconcileBatchSize {
			end := min(start+reconcileBatchSize, len(ids))
			res := t.db.WithContext(ctx).Model(&models.User{}).
				Where("id IN ?", ids[start:end]).
				Update("session_status", target)
			if res.Error != nil {
				return result, fmt.Errorf("presence: set %s: %w", target, res.Error)
			}
			switch target {
			case models.SessionStatusOffline:
				result.ToOffline += int(res.RowsAffected)
			case models.SessionStatusAway:
				result.ToAway += int(res.RowsAffected)
			case models.SessionStatusOnline:
				result.ToOnline += int(res.RowsAffected)
			}
		}
	}
	return result, nil
}

// OnlineUsers lists active users whose last heartbeat falls in the online bucket.
func (t *Tracker) OnlineUsers(ctx context.Context, now time.Time) (OnlineList, error) {
	var users []models.User
	err := t.db.WithContext(ctx).
		Select("id", "first_name", "last_name", "email", "user_type", "last_heartbeat_at", "device_info").
		Where("is_active = ?", true).
		Where("last_heartbeat_at IS NOT NULL").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return OnlineList{}, fmt.Errorf("presence: online users: %w", err)
	}

	list := OnlineList{Users: make([]OnlineUser, 0), ServerTime: now.UTC()}
	for i := range users {
		u := &users[i]
		if Derive(u.LastHeartbeatAt, now) != models.SessionStatusOnline {
			continue
		}
		entry := OnlineUser{
			ID:              u.ID,
			Name:            u.FullName(),
			Email:           u.Email,
			UserType:        u.UserType,
			UserTypeLabel:   models.UserTypeLabel(u.UserType),
			LastHeartbeatAt: u.LastHeartbeatAt,
		}
		if len(u.DeviceInfo) > 0 {
			entry.DeviceInfo = json.RawMessage(u.DeviceInfo)
		}
		list.Users = append(list.Users, entry)
	}
	list.Total = len(list.Users)
	return list, nil
}

// Summary counts users per stored session status.
func (t *Tracker) Summary(ctx context.Context) (Summary, error) {
	var rows []struct {
		SessionStatus string
		Count         int64
	}
	err := t.db.WithContext(ctx).Model(&models.User{}).
		Select("session_status, COUNT(*) AS count").
		Group("session_status").
		Scan(&rows).Error
	if err != nil {
		return Summary{}, fmt.Errorf("presence: summary: %w", err)
	}
	var out Summary
	for _, row := range rows {
		switch row.SessionStatus {
		case models.SessionStatusOnline:
			out.Online = row.Count
		case models.SessionStatusAway:
			out.Away = row.Count
		case models.SessionStatusOffline:
			out.Offline = row.Count
		}
		out.Total += row.Count
	}
	return out, nil
}
