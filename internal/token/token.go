// Package token derives deterministic opaque tokens from structured payloads.
//
// The payload is serialized canonically (JSON, object keys sorted at every depth),
// so equal payloads always derive the same token regardless of field insertion order.
//
// Two modes exist:
//   - ModeKeyed: hex(HMAC-SHA256(secret, class || 0x00 || canonical)). Access and refresh
//     tokens are domain separated by their class.
//   - ModeLegacy: hex(MD5(canonical)). Access and refresh tokens derived from the same
//     payload are identical. Output matches the legacy server only for payloads whose
//     keys it serialized in sorted order.
package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5" // #nosec G501 -- legacy token format, not used for secrecy.
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"

	"github.com/and161185/accountd/internal/model"
)

// Class separates token families derived from the same payload.
type Class string

// Token classes.
const (
	Access  Class = "access"
	Refresh Class = "refresh"
)

// Mode selects the derivation function.
type Mode int

// Derivation modes.
const (
	ModeKeyed Mode = iota
	ModeLegacy
)

// MinSecretBytes is the minimum secret size accepted in keyed mode.
const MinSecretBytes = 32

// ErrSecretTooShort is returned by NewIssuer for keyed mode with a short secret.
var ErrSecretTooShort = errors.New("token: secret too short")

// Issuer derives tokens.
type Issuer struct {
	mode   Mode
	secret []byte
}

// NewIssuer constructs an Issuer. Keyed mode requires a secret of at least MinSecretBytes.
func NewIssuer(mode Mode, secret []byte) (*Issuer, error) {
	if mode == ModeKeyed && len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	return &Issuer{mode: mode, secret: append([]byte(nil), secret...)}, nil
}

// Mode returns the derivation mode.
func (i *Issuer) Mode() Mode { return i.mode }

// Derive returns the token of the given class for payload.
func (i *Issuer) Derive(class Class, payload any) (string, error) {
	canon, err := Canonical(payload)
	if err != nil {
		return "", err
	}

	var h hash.Hash
	switch i.mode {
	case ModeLegacy:
		h = md5.New()
	default:
		h = hmac.New(sha256.New, i.secret)
		h.Write([]byte(class))
		h.Write([]byte{0})
	}
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Grant derives the access and refresh tokens for payload.
func (i *Issuer) Grant(payload any) (model.AccessGrant, error) {
	access, err := i.Derive(Access, payload)
	if err != nil {
		return model.AccessGrant{}, err
	}
	refresh, err := i.Derive(Refresh, payload)
	if err != nil {
		return model.AccessGrant{}, err
	}
	return model.AccessGrant{AccessToken: access, RefreshToken: refresh}, nil
}

// Canonical returns the canonical JSON encoding of v. Maps and structs are both
// reduced to objects with sorted keys; numbers keep their textual form.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("token: marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("token: normalize payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("token: encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
