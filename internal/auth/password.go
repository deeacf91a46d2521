package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordHasher produces Argon2id hashes in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=N$<salt>$<key>
//
// The work parameters travel inside each hash, so they can be raised
// later without invalidating stored credentials.
type PasswordHasher struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		memory:  64 * 1024,
		time:    3,
		threads: uint8(runtime.NumCPU()),
		saltLen: 16,
		keyLen:  32,
	}
}

func (ph *PasswordHasher) HashPassword(password string) (string, error) {
	salt := make([]byte, ph.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt entropy: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, ph.time, ph.memory, ph.threads, ph.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, ph.memory, ph.time, ph.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword recomputes the key with the parameters embedded in the
// stored hash. A mismatch returns (false, nil); an error means the
// stored hash itself is unusable.
func (ph *PasswordHasher) VerifyPassword(password, encodedHash string) (bool, error) {
	memory, time, threads, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func decodeHash(encoded string) (memory, time uint32, threads uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		err = fmt.Errorf("malformed password hash")
		return
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		err = fmt.Errorf("malformed hash parameters: %w", err)
		return
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		err = fmt.Errorf("malformed hash salt: %w", err)
		return
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		err = fmt.Errorf("malformed hash key: %w", err)
		return
	}
	return
}
