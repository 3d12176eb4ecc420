package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/labforge/lims-admin/internal/apperr"
)

// Key sizes accepted for user keypairs.
const (
	DefaultBits  = 2048
	GroupKeyBits = 4096
)

var allowedBits = map[int]struct{}{2048: {}, 3072: {}, 4096: {}}

// KeyGenerator produces an RSA private key of the given size.
type KeyGenerator func(random io.Reader, bits int) (*rsa.PrivateKey, error)

// Material is freshly generated PEM key material.
type Material struct {
	PublicKeyPEM  string
	PrivateKeyPEM string
	Algorithm     string
}

// NormalizeBits applies the default size and rejects unsupported ones.
func NormalizeBits(bits int) (int, error) {
	if bits == 0 {
		return DefaultBits, nil
	}
	if _, ok := allowedBits[bits]; !ok {
		return 0, apperr.InvalidArg(fmt.Sprintf("unsupported key size %d (allowed: 2048, 3072, 4096)", bits))
	}
	return bits, nil
}

// AlgorithmLabel names an RSA key of the given size.
func AlgorithmLabel(bits int) string {
	return fmt.Sprintf("RSA-%d", bits)
}

func generateMaterial(gen KeyGenerator, bits int) (Material, error) {
	if gen == nil {
		gen = rsa.GenerateKey
	}
	key, err := gen(rand.Reader, bits)
	if err != nil {
		return Material{}, apperr.GenerationFailed(err)
	}
	if key == nil {
		return Material{}, apperr.GenerationFailed(fmt.Errorf("engine returned no key"))
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Material{}, apperr.GenerationFailed(err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Material{}, apperr.GenerationFailed(err)
	}
	return Material{
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
		PublicKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		Algorithm:     AlgorithmLabel(bits),
	}, nil
}

// ParsePublicKeyPEM decodes a PKIX PEM block into an RSA public key.
func ParsePublicKeyPEM(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, fmt.Errorf("credentials: no PEM block in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("credentials: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("credentials: public key is %T, not RSA", pub)
	}
	return rsaPub, nil
}
