package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

// Stretch parameters. Changing any of them invalidates stored stretched keys.
const (
	StretchIterations = 10000
	StretchKeyLength  = 32
)

// StretchSalt is the lowercase hex SHA-256 digest of secret followed by the
// decimal user id. The hex text itself is the salt.
func StretchSalt(secret string, userID uint64) []byte {
	sum := sha256.Sum256([]byte(secret + strconv.FormatUint(userID, 10)))
	return []byte(hex.EncodeToString(sum[:]))
}

// Stretch derives the base64 PBKDF2-HMAC-SHA256 form of a private key.
func Stretch(privateKeyPEM, secret string, userID uint64) string {
	derived := pbkdf2.Key([]byte(privateKeyPEM), StretchSalt(secret, userID), StretchIterations, StretchKeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(derived)
}

// VerifyStretch recomputes the stretched key and compares in constant time.
func VerifyStretch(privateKeyPEM, stretched, secret string, userID uint64) bool {
	expected := Stretch(privateKeyPEM, secret, userID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(stretched)) == 1
}
