// Package auth implements API key generation and one-way hashing. Plaintext
// keys exist only in the registration response; everything else works on the
// SHA-256 digest, which doubles as the lookup key in storage.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// keyPrefix marks issued keys so malformed credentials are cheap to spot in
// logs without revealing anything about validity to callers.
const keyPrefix = "game_"

// keyBytes of entropy per key, before encoding.
const keyBytes = 32

// GenerateKey returns a new high-entropy API key.
func GenerateKey() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API key: %w", err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the hex-encoded SHA-256 digest of a key. The digest is what
// gets persisted and looked up; the hash is deterministic so authorization is
// a single indexed fetch.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// VerifyKey reports whether a presented key matches a stored hash, comparing
// in constant time.
func VerifyKey(presented, storedHash string) bool {
	computed := HashKey(presented)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// WellFormed reports whether a presented key has the issued shape. Callers
// must not surface the distinction to clients.
func WellFormed(key string) bool {
	return strings.HasPrefix(key, keyPrefix) && len(key) > len(keyPrefix)
}
