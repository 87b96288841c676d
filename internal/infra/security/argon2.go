package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/arklim/social-platform-authguard/internal/core/port"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errMalformedHash = errors.New("argon2: malformed encoded hash")
	errWeakParams    = errors.New("argon2: parameters below minimum")
)

// Argon2Config holds the Argon2id cost and sizing parameters used for
// new hashes. Stored hashes embed their own parameters, so changing the
// active config never invalidates existing credentials.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory %d KiB, need at least 8192", errWeakParams, c.Memory)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be positive", errWeakParams)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be positive", errWeakParams)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt %d bytes, need at least 8", errWeakParams, c.SaltLength)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key %d bytes, need at least 16", errWeakParams, c.KeyLength)
	}
	return nil
}

func (c Argon2Config) params() port.Argon2Params {
	return port.Argon2Params{
		Memory:      c.Memory,
		Iterations:  c.Iterations,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

var (
	argon2Mu  sync.RWMutex
	argon2Cfg = Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
)

// CurrentArgon2Config returns the parameters new hashes are created with.
func CurrentArgon2Config() Argon2Config {
	argon2Mu.RLock()
	defer argon2Mu.RUnlock()
	return argon2Cfg
}

// ConfigureArgon2 swaps the active hashing parameters. Rejects values
// below the hardening floor.
func ConfigureArgon2(cfg Argon2Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	argon2Mu.Lock()
	argon2Cfg = cfg
	argon2Mu.Unlock()
	return nil
}

// Argon2Hasher exposes the package hashing functions through the
// port.ConfigurablePasswordHasher interface.
type Argon2Hasher struct{}

var _ port.ConfigurablePasswordHasher = (*Argon2Hasher)(nil)

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	return HashPassword(password)
}

func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	return VerifyPassword(password, encoded)
}

func (h *Argon2Hasher) Configure(params port.Argon2Params) error {
	return ConfigureArgon2(Argon2Config{
		Memory:      params.Memory,
		Iterations:  params.Iterations,
		Parallelism: params.Parallelism,
		SaltLength:  params.SaltLength,
		KeyLength:   params.KeyLength,
	})
}

func (h *Argon2Hasher) Parameters() port.Argon2Params {
	return CurrentArgon2Config().params()
}

// HashPassword derives an Argon2id hash with a fresh random salt and
// encodes it as argon2id$v=19$m=..,t=..,p=..$<salt>$<key>, both parts
// base64 without padding.
func HashPassword(password string) (string, error) {
	cfg := CurrentArgon2Config()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)

	return fmt.Sprintf("%s$%s$m=%d,t=%d,p=%d$%s$%s",
		argon2Variant, argon2Version,
		cfg.Memory, cfg.Iterations, cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword re-derives the key from the candidate password using
// the parameters embedded in encoded and compares in constant time.
// Empty inputs report a mismatch without error.
func VerifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	stored, err := parseEncodedHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), stored.salt,
		stored.cfg.Iterations, stored.cfg.Memory, stored.cfg.Parallelism, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(candidate, stored.key) == 1, nil
}

// decodedHash is the parsed form of a stored credential hash.
type decodedHash struct {
	cfg  Argon2Config
	salt []byte
	key  []byte
}

func parseEncodedHash(encoded string) (decodedHash, error) {
	if strings.ContainsRune(encoded, '$') {
		return parsePHCHash(encoded)
	}
	return parseLegacyHash(encoded)
}

func parsePHCHash(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return decodedHash{}, fmt.Errorf("%w: want 5 segments, got %d", errMalformedHash, len(parts))
	}
	if parts[0] != argon2Variant {
		return decodedHash{}, fmt.Errorf("%w: unsupported variant %q", errMalformedHash, parts[0])
	}
	if parts[1] != argon2Version {
		return decodedHash{}, fmt.Errorf("%w: unsupported version %q", errMalformedHash, parts[1])
	}

	cfg, err := parseCostSegment(parts[2])
	if err != nil {
		return decodedHash{}, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return decodedHash{}, fmt.Errorf("argon2: decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return decodedHash{}, fmt.Errorf("argon2: decode key: %w", err)
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))
	if err := cfg.validate(); err != nil {
		return decodedHash{}, err
	}

	return decodedHash{cfg: cfg, salt: salt, key: key}, nil
}

// parseCostSegment reads the "m=..,t=..,p=.." segment. The three fields
// may appear in any order but each exactly once.
func parseCostSegment(segment string) (Argon2Config, error) {
	fields := strings.Split(segment, ",")
	if len(fields) != 3 {
		return Argon2Config{}, fmt.Errorf("%w: cost segment %q", errMalformedHash, segment)
	}

	seen := make(map[string]uint64, 3)
	for _, field := range fields {
		name, raw, ok := strings.Cut(field, "=")
		if !ok {
			return Argon2Config{}, fmt.Errorf("%w: cost field %q", errMalformedHash, field)
		}
		bits := 32
		if name == "p" {
			bits = 8
		}
		value, err := strconv.ParseUint(raw, 10, bits)
		if err != nil {
			return Argon2Config{}, fmt.Errorf("argon2: parse %s: %w", name, err)
		}
		if _, dup := seen[name]; dup {
			return Argon2Config{}, fmt.Errorf("%w: duplicate cost field %q", errMalformedHash, name)
		}
		seen[name] = value
	}

	for _, name := range []string{"m", "t", "p"} {
		if _, ok := seen[name]; !ok {
			return Argon2Config{}, fmt.Errorf("%w: missing cost field %q", errMalformedHash, name)
		}
	}

	return Argon2Config{
		Memory:      uint32(seen["m"]),
		Iterations:  uint32(seen["t"]),
		Parallelism: uint8(seen["p"]),
	}, nil
}

// parseLegacyHash handles the pre-PHC salt:key form that older imports
// carried over. Those hashes were produced with fixed parameters and
// padded base64.
func parseLegacyHash(encoded string) (decodedHash, error) {
	saltPart, keyPart, ok := strings.Cut(encoded, ":")
	if !ok {
		return decodedHash{}, errMalformedHash
	}

	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return decodedHash{}, fmt.Errorf("argon2: decode salt: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(keyPart)
	if err != nil {
		return decodedHash{}, fmt.Errorf("argon2: decode key: %w", err)
	}

	return decodedHash{
		cfg: Argon2Config{
			Memory:      64 * 1024,
			Iterations:  1,
			Parallelism: 4,
		},
		salt: salt,
		key:  key,
	}, nil
}
