package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/hugopriorizen/Base/internal/core/port"
)

const phcAlgorithm = "argon2id"

var (
	errInvalidHashFormat = errors.New("argon2: invalid encoded hash format")
	errInvalidConfig     = errors.New("argon2: invalid configuration")
)

var b64 = base64.RawStdEncoding

// Argon2Config holds the Argon2id cost parameters.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when configuration leaves them unset.
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
		return fmt.Errorf("%w: memory must be at least 8192 KiB", errInvalidConfig)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be positive", errInvalidConfig)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be positive", errInvalidConfig)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt must be at least 8 bytes", errInvalidConfig)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// phcHash is a decoded PHC string: $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type phcHash struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key),
	)
}

func parsePHC(encoded string) (phcHash, error) {
	// leading "$" yields an empty first field
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phcHash{}, errInvalidHashFormat
	}
	if fields[1] != phcAlgorithm {
		return phcHash{}, fmt.Errorf("%w: algorithm %q", errInvalidHashFormat, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return phcHash{}, fmt.Errorf("%w: version: %v", errInvalidHashFormat, err)
	}
	if version != argon2.Version {
		return phcHash{}, fmt.Errorf("%w: unsupported version %d", errInvalidHashFormat, version)
	}

	var h phcHash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return phcHash{}, fmt.Errorf("%w: parameters: %v", errInvalidHashFormat, err)
	}

	var err error
	if h.salt, err = b64.DecodeString(fields[4]); err != nil {
		return phcHash{}, fmt.Errorf("%w: salt: %v", errInvalidHashFormat, err)
	}
	if h.key, err = b64.DecodeString(fields[5]); err != nil {
		return phcHash{}, fmt.Errorf("%w: key: %v", errInvalidHashFormat, err)
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))

	if err := h.params.validate(); err != nil {
		return phcHash{}, err
	}
	return h, nil
}

// Argon2Hasher hashes account passwords with Argon2id.
type Argon2Hasher struct {
	cfg Argon2Config
}

// NewArgon2Hasher validates cfg and returns a hasher producing PHC-formatted hashes.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Config returns the parameters new hashes are produced with.
func (h *Argon2Hasher) Config() Argon2Config {
	return h.cfg
}

// Hash derives a key from password and a fresh random salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	return phcHash{
		params: h.cfg,
		salt:   salt,
		key:    derive(password, salt, h.cfg),
	}.String(), nil
}

// Verify recomputes the key with the parameters stored in encoded, so hashes made under older
// settings keep verifying.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	stored, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := derive(password, stored.salt, stored.params)
	return subtle.ConstantTimeCompare(computed, stored.key) == 1, nil
}

func derive(password string, salt []byte, p Argon2Config) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
