package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainProgram prefixes program hashes. The version suffix allows the
// encoding to change without colliding with old hashes.
const DomainProgram = "rpa/program/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the content hash of p: SHA-256 over its canonical JSON,
// hex encoded. Compiling the same project twice yields the same hash.
func Hash(p *Program) (string, error) {
	canonical, err := ToCanonical(p)
	if err != nil {
		return "", fmt.Errorf("Hash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the program is known to be valid.
func MustHash(p *Program) string {
	h, err := Hash(p)
	if err != nil {
		panic(err)
	}
	return h
}
