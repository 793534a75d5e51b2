package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

// makeIdentityToken builds an unsigned JWT-shaped token carrying the given
// claims in its payload segment.
func makeIdentityToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestParseIdentityClaims(t *testing.T) {
	t.Parallel()

	token := makeIdentityToken(t, map[string]any{
		"exp":     1756684800,
		"email":   "ada@example.com",
		"name":    "Ada Lovelace",
		"picture": "https://example.com/ada.png",
	})

	claims, err := ParseIdentityClaims(token)
	if err != nil {
		t.Fatalf("ParseIdentityClaims error: %v", err)
	}
	if claims.Exp != 1756684800 {
		t.Errorf("Exp = %d, want 1756684800", claims.Exp)
	}
	if claims.Email != "ada@example.com" || claims.Name != "Ada Lovelace" || claims.Picture != "https://example.com/ada.png" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestParseIdentityClaimsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two parts", "aaaa.bbbb"},
		{"bad base64", "aaaa.!!!!.cccc"},
		{"payload not json", "aaaa." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".cccc"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseIdentityClaims(tt.token); err == nil {
				t.Errorf("ParseIdentityClaims(%q) expected error, got nil", tt.token)
			}
		})
	}
}

func TestCurrentUserReturnsClaims(t *testing.T) {
	t.Parallel()

	store := NewMemoryCredentialStore()
	now := time.Unix(1700000000, 0)
	token := makeIdentityToken(t, map[string]any{
		"exp":   now.Unix() + 3600,
		"email": "ada@example.com",
		"name":  "Ada",
	})
	_ = store.Set(FieldIdentityToken, token)

	session := NewSession(store)
	session.now = func() time.Time { return now }

	user, ok := session.CurrentUser()
	if !ok {
		t.Fatal("CurrentUser reported absent for a valid token")
	}
	if user.Email != "ada@example.com" || user.Name != "Ada" {
		t.Errorf("unexpected user: %+v", user)
	}
	if !session.IsAuthenticated() {
		t.Error("IsAuthenticated = false for a valid token")
	}
}

func TestCurrentUserAbsentWhenNoToken(t *testing.T) {
	t.Parallel()

	session := NewSession(NewMemoryCredentialStore())
	if _, ok := session.CurrentUser(); ok {
		t.Error("CurrentUser reported a user with no stored token")
	}
	if session.IsAuthenticated() {
		t.Error("IsAuthenticated = true with no stored token")
	}
}

func TestCurrentUserMalformedTokenIsAbsent(t *testing.T) {
	t.Parallel()

	store := NewMemoryCredentialStore()
	_ = store.Set(FieldIdentityToken, "garbage")

	session := NewSession(store)
	if _, ok := session.CurrentUser(); ok {
		t.Error("CurrentUser reported a user for a malformed token")
	}
}

func TestCurrentUserExpiredTriggersLogout(t *testing.T) {
	t.Parallel()

	store := NewMemoryCredentialStore()
	now := time.Unix(1700000000, 0)
	token := makeIdentityToken(t, map[string]any{
		"exp":   now.Unix() - 1,
		"email": "ada@example.com",
	})
	for _, field := range persistentFields {
		_ = store.Set(field, "populated")
	}
	_ = store.Set(FieldIdentityToken, token)

	session := NewSession(store)
	session.now = func() time.Time { return now }

	if _, ok := session.CurrentUser(); ok {
		t.Fatal("CurrentUser reported a user for an expired token")
	}
	for _, field := range persistentFields {
		if _, ok := store.Get(field); ok {
			t.Errorf("expired token left field %s populated", field)
		}
	}
}

func TestCurrentUserExpiryBoundary(t *testing.T) {
	t.Parallel()

	// A token expiring exactly now is already expired.
	store := NewMemoryCredentialStore()
	now := time.Unix(1700000000, 0)
	token := makeIdentityToken(t, map[string]any{
		"exp":   now.Unix(),
		"email": "ada@example.com",
	})
	_ = store.Set(FieldIdentityToken, token)

	session := NewSession(store)
	session.now = func() time.Time { return now }

	if _, ok := session.CurrentUser(); ok {
		t.Error("token expiring exactly now must be treated as expired")
	}
	if _, ok := store.Get(FieldIdentityToken); ok {
		t.Error("boundary expiry did not trigger logout")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryCredentialStore()
	for _, field := range persistentFields {
		_ = store.Set(field, "v")
	}

	session := NewSession(store)
	session.Logout()
	session.Logout()

	for _, field := range persistentFields {
		if _, ok := store.Get(field); ok {
			t.Errorf("Logout left field %s populated", field)
		}
	}
}
