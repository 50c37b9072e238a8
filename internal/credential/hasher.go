// Package credential derives and verifies salted password hashes.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Stored hashes were produced with exactly these values,
// so changing any of them invalidates every existing credential.
// 1,000 iterations is far below current guidance.
const (
	Iterations = 1000
	KeyLength  = 64 // bytes, 128 hex chars
	SaltLength = 16 // bytes, 32 hex chars
)

// Hasher turns plaintext passwords into salted hashes and checks them.
type Hasher interface {
	GenerateSalt() (string, error)
	Hash(password, salt string) string
	Verify(password, salt, expectedHash string) bool
}

// PBKDF2Hasher implements Hasher with PBKDF2-HMAC-SHA256.
//
// Salts are hex strings and the hex text itself is the PBKDF2 salt input,
// which keeps hashes interchangeable with rows written by earlier versions of
// the application.
type PBKDF2Hasher struct{}

func NewPBKDF2Hasher() *PBKDF2Hasher { return &PBKDF2Hasher{} }

// GenerateSalt returns SaltLength random bytes, hex encoded.
func (PBKDF2Hasher) GenerateSalt() (string, error) {
	b := make([]byte, SaltLength)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("CREDENTIAL_SALT_FAILED").
			With("requested_bytes", SaltLength).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// Hash derives the hex-encoded key for password and salt.
func (PBKDF2Hasher) Hash(password, salt string) string {
	return hex.EncodeToString(derive(password, salt))
}

// Verify recomputes the key and compares it in constant time. A malformed
// expectedHash never matches.
func (PBKDF2Hasher) Verify(password, salt, expectedHash string) bool {
	computed := derive(password, salt)
	expected, err := hex.DecodeString(expectedHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func derive(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), Iterations, KeyLength, sha256.New)
}
