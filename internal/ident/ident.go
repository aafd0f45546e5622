// Package ident generates random account identifiers. Nothing here checks uniqueness;
// see package unique for that.
package ident

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// PID range. Values below MinPID are reserved for vendor-internal accounts.
const (
	MinPID uint32 = 1_000_000_000
	MaxPID uint32 = 4_294_967_295 // exclusive
)

const (
	// SortAlphabet is used for short human-typed codes. Look-alike glyphs
	// (0 O 1 I l o) are left out.
	SortAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

	// AlnumAlphabet is used for generated game server passwords.
	AlnumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Lengths of generated values.
const (
	DefaultIDLen     = 10
	EmailCodeLen     = 6
	NEXPasswordLen   = 16
	OpaqueTokenBytes = 24 // 32 base64url characters
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandomPID draws a PID uniformly from [MinPID, MaxPID).
func RandomPID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(MaxPID-MinPID)))
	if err != nil {
		return 0, fmt.Errorf("random pid: %w", err)
	}
	return MinPID + uint32(n.Uint64()), nil
}

// RandomCode returns length characters drawn independently from SortAlphabet.
func RandomCode(length int) (string, error) {
	return randomString(SortAlphabet, length)
}

// RandomID returns a DefaultIDLen character code.
func RandomID() (string, error) { return RandomCode(DefaultIDLen) }

// RandomNEXPassword returns a 16 character alphanumeric game server password.
func RandomNEXPassword() (string, error) {
	return randomString(AlnumAlphabet, NEXPasswordLen)
}

// RandomOpaqueToken returns a URL-safe token carrying OpaqueTokenBytes of entropy.
func RandomOpaqueToken() (string, error) {
	b, err := RandBytes(OpaqueTokenBytes)
	if err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomString(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("random string: invalid length %d", length)
	}
	bound := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, bound)
		if err != nil {
			return "", fmt.Errorf("random string: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
