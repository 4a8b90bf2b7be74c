// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package opaque generates high-entropy bearer tokens and the hashes under
// which they are stored.
package opaque

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Length is the number of random bytes in a token.
const Length = 32

// New generates a token. Returns (plaintext token, SHA256 hash for storage, error).
func New() (string, string, error) {
	b := make([]byte, Length)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext := hex.EncodeToString(b)
	return plaintext, Hash(plaintext), nil
}

// Hash computes the SHA256 hash of a token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
