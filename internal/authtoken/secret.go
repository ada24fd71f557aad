// Package authtoken implements token-secret generation and hashing
// (spec §4.5): a length-N alphanumeric random string from a
// cryptographically adequate source, hashed with SHA-512 and encoded as
// lowercase hex. The cleartext is returned once, for delivery; only the
// hash is ever persisted.
package authtoken

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSecret returns a length-N alphanumeric cleartext secret drawn
// from crypto/rand.
func GenerateSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("authtoken: length must be positive, got %d", length)
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("authtoken: generate secret: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}

// Hash computes the canonical hex-encoded SHA-512 digest of secret's
// UTF-8 bytes. This is the only form of the secret ever persisted.
func Hash(secret string) string {
	sum := sha512.Sum512([]byte(secret))
	return hex.EncodeToString(sum[:])
}
