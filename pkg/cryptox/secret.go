// Package cryptox provides the crypto primitives of the token engine: one-way
// salted hashing of secret token values and cryptographically secure random
// token generation. Everything here is stateless and safe for concurrent use.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Deliberately slow: the stored credential is the hash,
// so deriving it must cost enough to make offline guessing uneconomical.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

// ErrSecretMismatch reports that a secret does not verify against a digest,
// either because the values differ or because the digest is not a valid
// encoding. The two cases are intentionally indistinguishable.
var ErrSecretMismatch = errors.New("cryptox: secret does not match digest")

// HashSecret derives a salted Argon2id digest of the secret in PHC string
// format. A fresh random salt is generated per call, so hashing the same
// secret twice yields different digests.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifySecret recomputes the digest of secret using the salt and parameters
// embedded in the PHC-encoded digest and compares in constant time. It
// returns nil on match and ErrSecretMismatch otherwise; a corrupt digest is
// reported the same way as a wrong secret.
func VerifySecret(secret, digest string) error {
	salt, expected, params, err := decodeDigest(digest)
	if err != nil {
		return ErrSecretMismatch
	}

	computed := argon2.IDKey([]byte(secret), salt, params.iterations, params.memory, params.parallelism, uint32(len(expected)))

	if subtle.ConstantTimeCompare(computed, expected) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// decodeDigest parses a PHC string of the form
// $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func decodeDigest(digest string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, nil, params, errors.New("cryptox: invalid digest format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, errors.New("cryptox: unsupported digest algorithm")
	}
	if parts[2] != "v=19" {
		return nil, nil, params, errors.New("cryptox: unsupported argon2 version")
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.iterations, &params.parallelism); err != nil {
		return nil, nil, params, fmt.Errorf("cryptox: invalid digest parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("cryptox: invalid digest salt: %w", err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("cryptox: invalid digest hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, errors.New("cryptox: empty digest hash")
	}

	return salt, hash, params, nil
}
