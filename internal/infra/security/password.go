package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when none are configured.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be at least 8192", errInvalidConfig)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// PasswordHasher hashes and verifies Basic-login passwords with Argon2id.
type PasswordHasher struct {
	cfg Argon2Config
}

// NewPasswordHasher validates cfg and returns a hasher using it for new hashes.
func NewPasswordHasher(cfg Argon2Config) (*PasswordHasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &PasswordHasher{cfg: cfg}, nil
}

// Hash encodes password as argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return strings.Join([]string{
		argon2Variant,
		argon2Version,
		fmt.Sprintf("m=%d,t=%d,p=%d", h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	}, "$"), nil
}

// Verify reports whether password matches encoded. Parameters are taken from the hash,
// so hashes made with older settings keep verifying.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func decodeHash(encoded string) (Argon2Config, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return Argon2Config{}, nil, nil, errInvalidHashFormat
	}
	if parts[0] != argon2Variant {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: unexpected variant %q", parts[0])
	}
	if parts[1] != argon2Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: unsupported version %q", parts[1])
	}

	cfg, err := parseParams(parts[2])
	if err != nil {
		return Argon2Config{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("argon2: decode hash: %w", err)
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(hash))
	if err := cfg.validate(); err != nil {
		return Argon2Config{}, nil, nil, err
	}

	return cfg, salt, hash, nil
}

func parseParams(segment string) (Argon2Config, error) {
	var cfg Argon2Config

	entries := strings.Split(segment, ",")
	if len(entries) != 3 {
		return cfg, errInvalidHashFormat
	}

	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return cfg, errInvalidHashFormat
		}

		switch key {
		case "m", "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return cfg, fmt.Errorf("argon2: parse %s: %w", key, err)
			}
			if key == "m" {
				cfg.Memory = uint32(n)
			} else {
				cfg.Iterations = uint32(n)
			}
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return cfg, fmt.Errorf("argon2: parse %s: %w", key, err)
			}
			cfg.Parallelism = uint8(n)
		default:
			return cfg, errInvalidHashFormat
		}
	}

	return cfg, nil
}
