// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package password hashes and verifies account credentials.
//
// New digests use Argon2id in PHC string format:
//
//	$argon2id$v=19$m=65536,t=4,p=3$<base64-salt>$<base64-key>
//
// Digests imported from the legacy storefront may still be bcrypt
// ($2a$, $2b$, $2y$). Verify accepts both, and NeedsRehash reports
// digests that should be replaced after the next successful login.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	algorithmID = "argon2id"

	// Upper bounds applied to parameters parsed from stored digests so a
	// corrupted row cannot make a single verification allocate gigabytes.
	maxMemoryKiB   = 1 << 21
	maxIterations  = 64
	minKeyLength   = 16
	maxKeyLength   = 128
	minSaltLength  = 8
	maxSaltLength  = 64
	maxPlainLength = 4096
)

// ErrInvalidParams is returned by New when the cost parameters are unusable.
var ErrInvalidParams = errors.New("invalid argon2 parameters")

// Params are the Argon2id cost parameters.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the storefront's production cost: 64 MiB, 4 passes, 3 lanes.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   65536,
		Iterations:  4,
		Parallelism: 3,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Params) validate() error {
	switch {
	case p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB > maxMemoryKiB:
		return fmt.Errorf("%w: memory %d KiB", ErrInvalidParams, p.MemoryKiB)
	case p.Iterations < 1 || p.Iterations > maxIterations:
		return fmt.Errorf("%w: iterations %d", ErrInvalidParams, p.Iterations)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism %d", ErrInvalidParams, p.Parallelism)
	case p.SaltLength < minSaltLength || p.SaltLength > maxSaltLength:
		return fmt.Errorf("%w: salt length %d", ErrInvalidParams, p.SaltLength)
	case p.KeyLength < minKeyLength || p.KeyLength > maxKeyLength:
		return fmt.Errorf("%w: key length %d", ErrInvalidParams, p.KeyLength)
	}
	return nil
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	params Params
	dummy  string
}

// New creates a Hasher with the given parameters. Zero salt and key
// lengths take their defaults.
func New(params Params) (*Hasher, error) {
	def := DefaultParams()
	if params.SaltLength == 0 {
		params.SaltLength = def.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = def.KeyLength
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	h := &Hasher{params: params}

	// The dummy digest is verified when no real account digest exists, so
	// those paths pay the same derivation cost as a wrong password.
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy seed: %w", err)
	}
	dummy, err := h.Hash(base64.RawStdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("generate dummy digest: %w", err)
	}
	h.dummy = dummy
	return h, nil
}

// Params returns the parameters new digests are created with.
func (h *Hasher) Params() Params {
	return h.params
}

// Dummy returns a valid digest that no caller knows the plaintext for.
func (h *Hasher) Dummy() string {
	return h.dummy
}

// Hash derives a new salted digest for plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPlainLength {
		return "", fmt.Errorf("password exceeds %d bytes", maxPlainLength)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest. Any malformed or
// unsupported digest yields false; the reason is never exposed.
func (h *Hasher) Verify(plaintext, digest string) bool {
	if len(plaintext) > maxPlainLength {
		return false
	}
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	}

	d, err := decode(digest)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(plaintext), d.salt, d.params.Iterations, d.params.MemoryKiB, d.params.Parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1
}

// NeedsRehash reports whether digest was produced by another algorithm or
// with parameters different from the Hasher's current ones.
func (h *Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}
	d, err := decode(digest)
	if err != nil {
		return true
	}
	return d.params.MemoryKiB != h.params.MemoryKiB ||
		d.params.Iterations != h.params.Iterations ||
		d.params.Parallelism != h.params.Parallelism ||
		uint32(len(d.key)) != h.params.KeyLength
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

var errMalformed = errors.New("malformed digest")

func decode(digest string) (*decoded, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformed
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return nil, errMalformed
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errMalformed
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, errMalformed
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	if err := p.validate(); err != nil {
		return nil, errMalformed
	}

	return &decoded{params: p, salt: salt, key: key}, nil
}
