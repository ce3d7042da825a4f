package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters for newly minted hashes, per current OWASP
// guidance. Verification reads the costs embedded in each hash instead,
// so these can be raised later without invalidating existing config
// files.
const (
	argonIterations  = 3
	argonMemoryKiB   = 64 * 1024
	argonParallelism = 1
	argonKeyLen      = 32
	argonSaltLen     = 16
)

// HashPassword derives an Argon2id hash of password and encodes it in
// PHC form, e.g. $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
//
// The result is what security.admin.password_hash in config.yaml
// expects. There is no user table; the dashboard has exactly one
// operator account.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		argonIterations, argonMemoryKiB, argonParallelism, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKiB, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifyPassword reports whether password matches the PHC-encoded hash.
// The comparison is constant-time.
func VerifyPassword(password, encodedHash string) (bool, error) {
	phc, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), phc.salt,
		phc.iterations, phc.memoryKiB, phc.parallelism,
		uint32(len(phc.key))) //nolint:gosec // G115: key length always fits uint32

	return subtle.ConstantTimeCompare(phc.key, candidate) == 1, nil
}

// phcFields is one decoded $argon2id$... string.
type phcFields struct {
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// parsePHC splits and validates a PHC-format Argon2id hash.
func parsePHC(encoded string) (phcFields, error) {
	var phc phcFields

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // $argon2id$v=..$m=..,t=..,p=..$salt$key
		return phc, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return phc, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return phc, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return phc, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&phc.memoryKiB, &phc.iterations, &phc.parallelism); err != nil {
		return phc, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if phc.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phc, fmt.Errorf("decoding salt: %w", err)
	}
	if phc.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phc, fmt.Errorf("decoding hash: %w", err)
	}

	return phc, nil
}
