// Package auth guards the HTTP admin API and the Telegram webhook.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"gallerybot/internal/ids"
)

// APIKeyLen is the length of keys minted by NewAPIKey.
const APIKeyLen = 32

var ErrInvalidHash = errors.New("invalid argon2id hash")

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

var defaultParams = argon2Params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 2,
	saltLen:     16,
	keyLen:      32,
}

// NewAPIKey returns a fresh random admin key.
func NewAPIKey() (string, error) {
	return ids.New(APIKeyLen)
}

// HashAPIKey returns the PHC-formatted argon2id hash of key, suitable for
// APP_ADMIN_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	salt := make([]byte, defaultParams.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	return encodeHash(defaultParams, salt, derive(key, salt, defaultParams)), nil
}

// VerifyAPIKey reports whether key matches hash.
func VerifyAPIKey(hash, key string) (bool, error) {
	p, salt, want, err := decodeHash(hash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, derive(key, salt, p)) == 1, nil
}

// SecretEqual compares two shared secrets in constant time. An empty expected
// secret never matches.
func SecretEqual(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func derive(key string, salt []byte, p argon2Params) []byte {
	return argon2.IDKey([]byte(key), salt, p.iterations, p.memory, p.parallelism, p.keyLen)
}

func encodeHash(p argon2Params, salt, key []byte) string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.iterations, p.parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

func decodeHash(hash string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(strings.TrimSpace(hash), "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return argon2Params{}, nil, nil, fmt.Errorf("%w: unsupported version %s", ErrInvalidHash, parts[2])
	}

	var p argon2Params
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return argon2Params{}, nil, nil, fmt.Errorf("%w: params", ErrInvalidHash)
		}
		var bits int
		switch k {
		case "m", "t":
			bits = 32
		case "p":
			bits = 8
		default:
			return argon2Params{}, nil, nil, fmt.Errorf("%w: unknown param %q", ErrInvalidHash, k)
		}
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil || n == 0 {
			return argon2Params{}, nil, nil, fmt.Errorf("%w: param %s", ErrInvalidHash, k)
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.iterations = uint32(n)
		case "p":
			p.parallelism = uint8(n)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return argon2Params{}, nil, nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argon2Params{}, nil, nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	p.saltLen = uint32(len(salt))
	p.keyLen = uint32(len(key))
	return p, salt, key, nil
}
