package models

import "time"

// Setting is a typed key/value row of lab configuration.
type Setting struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`        // Primary key.
	Key         string    `gorm:"type:text;not null;uniqueIndex"` // Unique setting key.
	Value       string    `gorm:"type:text"`                       // Serialized (possibly encrypted) value.
	Type        string    `gorm:"type:text;not null;default:'string'"`
	Description string    `gorm:"type:text"`              // Human readable description.
	IsEncrypted bool      `gorm:"not null;default:false"` // Value is ciphertext at rest.
	IsSystem    bool      `gorm:"not null;default:false"` // System settings cannot be deleted.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"`
}
