// Package crypto implements the legacy account password hash and its stored envelope.
package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// legacySeparator sits between the packed PID and the password.
var legacySeparator = []byte{0x02, 'e', 'C', 'F'}

// DigestLen is the length of a hex encoded legacy digest.
const DigestLen = sha256.Size * 2

// LegacyHash returns the lowercase hex SHA-256 digest that legacy clients derive from
// a password and PID: sha256(le32(pid) || 0x02 "eCF" || ascii(password)).
func LegacyHash(password string, pid uint32) string {
	buf := make([]byte, 0, 4+len(legacySeparator)+len(password))
	buf = binary.LittleEndian.AppendUint32(buf, pid)
	buf = append(buf, legacySeparator...)
	buf = appendASCII(buf, password)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// appendASCII appends the UTF-8 bytes of s with the high bit of every byte cleared,
// which is how the legacy client narrows a password to 7-bit text.
func appendASCII(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		dst = append(dst, s[i]&0x7f)
	}
	return dst
}

// IsASCII reports whether s hashes without any byte being narrowed.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// SealPassword returns the stored form of a password: bcrypt over the legacy digest.
func SealPassword(password string, pid uint32) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(LegacyHash(password, pid)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword verifies password against a stored hash. The stored hash is either a
// bcrypt envelope produced by SealPassword or a bare legacy hex digest.
func CheckPassword(stored, password string, pid uint32) bool {
	digest := LegacyHash(password, pid)
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(digest)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(digest)) == 1
}
