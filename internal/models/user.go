package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// User types recognised by the lab.
const (
	UserTypeAdmin      = "admin"
	UserTypeManager    = "manager"
	UserTypeTechnician = "technician"
	UserTypeAnalyst    = "analyst"
)

// Session status values maintained by the presence tracker.
const (
	SessionStatusOnline  = "online"
	SessionStatusAway    = "away"
	SessionStatusOffline = "offline"
)

var userTypeLabels = map[string]string{
	UserTypeAdmin:      "Administrator",
	UserTypeManager:    "Manager",
	UserTypeTechnician: "Technician",
	UserTypeAnalyst:    "Analyst",
}

// User represents a lab staff account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FirstName   string     `gorm:"type:text"`                      // Given name.
	LastName    string     `gorm:"type:text"`                      // Family name.
	Email       string     `gorm:"type:text;not null;uniqueIndex"` // Login email.
	PhoneNumber string     `gorm:"type:text"`                      // Contact phone.
	Password    string     `gorm:"type:text;not null"`             // Hashed password.
	DateHired   *time.Time // Hire date.

	UserType     string `gorm:"type:text;not null;default:'technician';index"` // Role within the lab.
	AccountIsSet bool   `gorm:"not null;default:false"`                        // First-time setup completed.
	IsActive     bool   `gorm:"not null;default:true;index"`                   // Whether the user can sign in.

	LastLoginAt         *time.Time // Last successful login.
	FailedLoginAttempts int        `gorm:"not null;default:0"` // Consecutive failed logins.
	LockedUntil         *time.Time // Sign-in refused until this time.

	LastHeartbeatAt *time.Time     `gorm:"index"`                                      // Last presence heartbeat.
	SessionStatus   string         `gorm:"type:text;not null;default:'offline';index"` // Derived presence bucket.
	DeviceInfo      datatypes.JSON `gorm:"type:jsonb"`                                 // Client device reported with the last heartbeat.

	TOTPSecret   string `gorm:"type:text"`          // TOTP secret for MFA.
	TokenVersion int    `gorm:"not null;default:0"` // Bumped to revoke every issued token.

	Keypairs []Keypair `gorm:"foreignKey:UserID"` // Issued keypairs.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserTypeLabel returns the display label for a user type.
func UserTypeLabel(userType string) string {
	if label, ok := userTypeLabels[userType]; ok {
		return label
	}
	return "Unknown"
}

// ValidUserType reports whether the value is a known user type.
func ValidUserType(userType string) bool {
	_, ok := userTypeLabels[userType]
	return ok
}

// ValidSessionStatus reports whether the value is a known session status.
func ValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusOnline, SessionStatusAway, SessionStatusOffline:
		return true
	default:
		return false
	}
}
