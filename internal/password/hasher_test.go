// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// testParams keeps derivation fast; production cost is covered by DefaultParams.
func testParams() Params {
	return Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := New(testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return h
}

func TestHasher_HashAndVerify(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	digest, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("unexpected digest format: %s", digest)
	}
	if !h.Verify("correct horse battery staple", digest) {
		t.Error("expected correct password to verify")
	}
	if h.Verify("correct horse battery stapl", digest) {
		t.Error("expected wrong password to fail")
	}
}

func TestHasher_HashIsSalted(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	a, _ := h.Hash("secret")
	b, _ := h.Hash("secret")
	if a == b {
		t.Error("two digests of the same password must differ")
	}
}

func TestHasher_VerifyMalformed(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	good, _ := h.Hash("secret")
	parts := strings.Split(good, "$")

	tests := map[string]string{
		"empty":         "",
		"plain text":    "secret",
		"md5":           "5ebe2294ecd0e0f08eab7690d2a6ee69",
		"argon2i":       strings.Replace(good, "argon2id", "argon2i", 1),
		"wrong version": strings.Replace(good, "v=19", "v=16", 1),
		"bad params":    strings.Replace(good, "m=1024,t=1,p=1", "m=x,t=1,p=1", 1),
		"huge memory":   strings.Replace(good, "m=1024", "m=99999999", 1),
		"bad salt":      "$" + strings.Join([]string{parts[1], parts[2], parts[3], "!!!", parts[5]}, "$"),
		"short key":     "$" + strings.Join([]string{parts[1], parts[2], parts[3], parts[4], "AAAA"}, "$"),
		"extra field":   good + "$x",
		"broken bcrypt": "$2y$10$notarealbcrypthash",
	}

	for name, digest := range tests {
		if h.Verify("secret", digest) {
			t.Errorf("%s: malformed digest verified", name)
		}
	}
}

func TestHasher_VerifyLegacyBcrypt(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	raw, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Digests written by the old storefront carry the $2y$ prefix.
	legacy := "$2y$" + strings.TrimPrefix(string(raw), "$2a$")

	for _, digest := range []string{string(raw), legacy} {
		if !h.Verify("legacy-pass", digest) {
			t.Errorf("expected bcrypt digest %q to verify", digest[:7])
		}
		if h.Verify("wrong", digest) {
			t.Error("expected wrong password to fail against bcrypt digest")
		}
		if !h.NeedsRehash(digest) {
			t.Error("bcrypt digest should need rehash")
		}
	}
}

func TestHasher_NeedsRehash(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	digest, _ := h.Hash("secret")
	if h.NeedsRehash(digest) {
		t.Error("fresh digest should not need rehash")
	}

	stronger, err := New(Params{MemoryKiB: 2048, Iterations: 2, Parallelism: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stronger.NeedsRehash(digest) {
		t.Error("digest with weaker params should need rehash")
	}
	if !h.NeedsRehash("garbage") {
		t.Error("malformed digest should need rehash")
	}
}

func TestHasher_Dummy(t *testing.T) {
	t.Parallel()
	h := newTestHasher(t)

	if h.Dummy() == "" {
		t.Fatal("dummy digest should be set")
	}
	if h.NeedsRehash(h.Dummy()) {
		t.Error("dummy digest should use current params")
	}
	if h.Verify("", h.Dummy()) {
		t.Error("dummy digest must not verify an empty password")
	}
}

func TestNew_InvalidParams(t *testing.T) {
	t.Parallel()

	tests := []Params{
		{MemoryKiB: 4, Iterations: 1, Parallelism: 1},
		{MemoryKiB: 1024, Iterations: 0, Parallelism: 1},
		{MemoryKiB: 1024, Iterations: 1, Parallelism: 0},
		{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, KeyLength: 4},
	}
	for _, p := range tests {
		if _, err := New(p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidParams", p, err)
		}
	}
}

func TestDefaultParams(t *testing.T) {
	t.Parallel()
	p := DefaultParams()
	if p.MemoryKiB != 65536 || p.Iterations != 4 || p.Parallelism != 3 {
		t.Errorf("DefaultParams() = %+v", p)
	}
	if err := p.validate(); err != nil {
		t.Errorf("default params invalid: %v", err)
	}
}
