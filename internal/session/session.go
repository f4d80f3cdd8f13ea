// Package session derives the anonymous shopper identity from request
// metadata: an opaque session key plus a device fingerprint.
package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	HeaderName = "X-Session-Id"
	CookieName = "session_id"
)

// Metadata is the request information the identity is derived from.
type Metadata struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	ClientAddr     string
	Token          string
}

// Identity addresses exactly one cart.
type Identity struct {
	SessionKey  string
	Fingerprint string
}

// Identify returns the caller's identity. minted is true when no token was
// supplied and a new session key was generated; the caller must hand it back
// to the client.
func Identify(md Metadata) (id Identity, minted bool) {
	key := strings.TrimSpace(md.Token)
	if key == "" {
		key = NewSessionKey()
		minted = true
	}
	return Identity{SessionKey: key, Fingerprint: Fingerprint(md)}, minted
}

// NewSessionKey returns a random opaque token (122 bits from crypto/rand).
func NewSessionKey() string {
	return uuid.NewString()
}

// Fingerprint is a stable hash of the device metadata. It binds a session to
// a device profile; it is not a credential.
func Fingerprint(md Metadata) string {
	d := xxhash.New()
	for _, part := range []string{md.UserAgent, md.AcceptLanguage, md.AcceptEncoding, md.ClientAddr} {
		_, _ = d.WriteString(part)
		_, _ = d.WriteString("\x00")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

type ctxKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.SessionKey != ""
}
