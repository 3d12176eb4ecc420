package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/settings"
	"github.com/rakutentech/jwk-go/jwk"
)

// GroupKeyID is the kid published for the group public key.
const GroupKeyID = "group"

// JWKS is a JSON Web Key Set of public keys.
type JWKS struct {
	Keys []json.RawMessage `json:"keys"`
}

// PublicJWK encodes an RSA public key PEM as a JWK for encryption.
func PublicJWK(publicKeyPEM, keyID string) (json.RawMessage, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	rawJWK, err := jwk.NewSpec(pub).ToJWK()
	if err != nil {
		return nil, fmt.Errorf("credentials: creating JWK: %w", err)
	}
	rawJWK.Use = "enc"
	rawJWK.Alg = "RSA-OAEP-256"
	rawJWK.Kid = keyID

	data, err := rawJWK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("credentials: marshalling JWK: %w", err)
	}
	return data, nil
}

// KeyIDForUser is the kid published for a user's active key.
func KeyIDForUser(userID, keypairID uint64) string {
	return "user-" + strconv.FormatUint(userID, 10) + "-" + strconv.FormatUint(keypairID, 10)
}

// PublicKeySet returns the active user keys plus the group key as a JWKS.
// The group key is only included when it already exists.
func (m *Manager) PublicKeySet(ctx context.Context) (JWKS, error) {
	active, err := m.ActiveKeypairs(ctx)
	if err != nil {
		return JWKS{}, err
	}
	set := JWKS{Keys: make([]json.RawMessage, 0, len(active)+1)}
	for _, kp := range active {
		key, errKey := PublicJWK(kp.PublicKey, KeyIDForUser(kp.UserID, kp.ID))
		if errKey != nil {
			return JWKS{}, errKey
		}
		set.Keys = append(set.Keys, key)
	}
	// Only the public half is read; the private row is never decrypted here.
	group, err := m.settings.Lookup(ctx, settings.GroupPublicKeyKey)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return JWKS{}, err
	}
	if pubPEM, _ := group.Value.(string); err == nil && pubPEM != "" {
		key, errKey := PublicJWK(pubPEM, GroupKeyID)
		if errKey != nil {
			return JWKS{}, errKey
		}
		set.Keys = append(set.Keys, key)
	}
	return set, nil
}
