package models

import "time"

// RevokedToken records a bearer token id that was signed out before expiry.
type RevokedToken struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`                  // Primary key.
	JTI       string    `gorm:"column:jti;type:text;not null;uniqueIndex"` // Token id claim.
	UserID    uint64    `gorm:"not null;index"`                            // Token owner.
	ExpiresAt time.Time `gorm:"not null;index"`                            // Row may be purged after this.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`                   // Revocation time.
}
