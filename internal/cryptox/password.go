// Package cryptox implements password hashing for Flasky accounts.
//
// New hashes are argon2id in the PHC string format
// ($argon2id$v=19$m=...,t=...,p=...$salt$key), so the salt and cost
// parameters travel with the hash. Verification also understands bcrypt
// hashes ($2a$, $2b$, $2y$) imported from older deployments; NeedsRehash
// flags them so callers can upgrade on the next successful login.
package cryptox

import (
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// DefaultParams are the argon2id costs used for new hashes.
var DefaultParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes and verifies passwords with a fixed argon2id cost.
type Hasher struct {
	params *argon2id.Params
}

// NewHasher returns a Hasher using params, or DefaultParams when nil.
func NewHasher(params *argon2id.Params) *Hasher {
	if params == nil {
		params = DefaultParams
	}
	return &Hasher{params: params}
}

// Hash returns a freshly salted argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	return argon2id.CreateHash(password, h.params)
}

// Verify compares password with encoded in constant time. Malformed or
// unknown encodings never match.
func (h *Hasher) Verify(password, encoded string) bool {
	switch {
	case isArgon2id(encoded):
		ok, err := argon2id.ComparePasswordAndHash(password, encoded)
		return err == nil && ok
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether encoded was produced by another algorithm
// or with costs different from the hasher's.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if !isArgon2id(encoded) {
		return true
	}
	params, _, _, err := argon2id.DecodeHash(encoded)
	if err != nil {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
}

var defaultHasher = NewHasher(nil)

// HashPassword hashes password with DefaultParams.
func HashPassword(password string) (string, error) { return defaultHasher.Hash(password) }

// VerifyPassword checks password against an encoded hash.
func VerifyPassword(password, encoded string) bool { return defaultHasher.Verify(password, encoded) }

// NeedsRehash reports whether encoded should be replaced by a new default hash.
func NeedsRehash(encoded string) bool { return defaultHasher.NeedsRehash(encoded) }

func isArgon2id(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
