package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// IdentityClaims represents the display claims carried in the identity
// token's payload segment.
type IdentityClaims struct {
	// Exp is the token expiry as unix seconds.
	Exp int64 `json:"exp"`
	// Email is the authenticated user's email address.
	Email string `json:"email"`
	// Name is the user's display name.
	Name string `json:"name"`
	// Picture is the URL of the user's profile picture.
	Picture string `json:"picture"`
}

// User holds the profile attributes shown for a logged-in user.
type User struct {
	Email   string
	Name    string
	Picture string
}

// ParseIdentityClaims decodes the claims segment of an identity token
// without verifying its signature. The claims are used for display only;
// the backend independently re-validates credentials on every call.
func ParseIdentityClaims(token string) (*IdentityClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid identity token format: expected 3 parts, got %d", len(parts))
	}

	claimsData, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode identity token claims: %w", err)
	}

	var claims IdentityClaims
	if err = json.Unmarshal(claimsData, &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity token claims: %w", err)
	}
	return &claims, nil
}

// base64URLDecode decodes a base64url string, re-adding the padding that
// JWT segments omit.
func base64URLDecode(data string) ([]byte, error) {
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	return base64.URLEncoding.DecodeString(data)
}

// Session answers "who is logged in" from the persisted identity token. It
// is the sole source of truth for authentication state: an expired token is
// treated as logged out and additionally tears down all persisted
// credentials.
type Session struct {
	store CredentialStore
	now   func() time.Time
}

// NewSession creates a session view over the given store.
func NewSession(store CredentialStore) *Session {
	return &Session{store: store, now: time.Now}
}

// CurrentUser returns the display claims of the logged-in user. It reports
// false when no identity token is persisted, when the token cannot be
// decoded, or when it has expired. Expiry triggers a full logout; a token
// whose expiry equals the current instant is already expired.
func (s *Session) CurrentUser() (*User, bool) {
	token, ok := s.store.Get(FieldIdentityToken)
	if !ok {
		return nil, false
	}

	claims, err := ParseIdentityClaims(token)
	if err != nil {
		log.Debugf("ignoring unreadable identity token: %v", err)
		return nil, false
	}

	if claims.Exp*1000 <= s.now().UnixMilli() {
		s.Logout()
		return nil, false
	}

	return &User{
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, true
}

// IsAuthenticated reports whether a user is currently logged in, including
// the expiry check and cleanup performed by CurrentUser.
func (s *Session) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// Logout clears every persisted credential. It is safe to call repeatedly.
func (s *Session) Logout() {
	if err := s.store.ClearAll(); err != nil {
		log.Errorf("failed to clear credentials: %v", err)
	}
}
