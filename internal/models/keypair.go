package models

import "time"

// Keypair stores an asymmetric keypair issued to a user.
type Keypair struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	UserID uint64 `gorm:"not null;index"`           // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`        // Owning user.

	PublicKey                    string `gorm:"type:text;not null"` // PEM encoded public key.
	PrivateKeyEncrypted          string `gorm:"type:text;not null"` // Encrypted PEM private key.
	PrivateKeyStretchedEncrypted string `gorm:"type:text"`          // Encrypted stretched private key.
	KeyAlgorithm                 string `gorm:"type:text;not null"` // Algorithm label such as RSA-2048.

	GeneratedAt time.Time  `gorm:"not null;index"`              // Generation timestamp.
	ExpiresAt   *time.Time // Optional expiry.
	IsActive    bool       `gorm:"not null;default:true;index"` // Single active keypair per user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the keypair table name.
func (Keypair) TableName() string {
	return "user_keypairs"
}
