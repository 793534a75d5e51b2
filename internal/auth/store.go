package auth

import "sync"

// CredentialField names one of the persistent credential slots.
type CredentialField string

// The four persistent slots. Field values double as JSON keys in the
// file-backed store.
const (
	FieldIdentityToken CredentialField = "id_token"
	FieldAccessToken   CredentialField = "access_token"
	FieldRefreshToken  CredentialField = "refresh_token"
	FieldAPIKey        CredentialField = "api_key"
)

// persistentFields lists every slot ClearAll must remove, present or not.
var persistentFields = []CredentialField{
	FieldIdentityToken,
	FieldAccessToken,
	FieldRefreshToken,
	FieldAPIKey,
}

// CredentialStore is the storage boundary between the login flow and the
// rest of the client. It carries two scopes with different lifetimes:
//
// Session scope holds the single outstanding PKCE code verifier. PutVerifier
// overwrites any prior value (last login attempt wins) and TakeVerifier is
// read-and-delete, so a verifier authorizes at most one callback.
//
// Persistent scope holds the identity token, access token, refresh token and
// API key, surviving restarts until ClearAll. ClearAll removes all four
// slots regardless of which are present and is idempotent.
//
// Only the Flow, KeyExchanger and Authorizer write to persistent scope.
type CredentialStore interface {
	PutVerifier(verifier string) error
	TakeVerifier() (string, bool)
	ClearSession()

	Set(field CredentialField, value string) error
	Get(field CredentialField) (string, bool)
	ClearAll() error
}

// MemoryCredentialStore keeps both scopes in process memory. It backs tests
// and short-lived invocations that should not touch the credentials file.
type MemoryCredentialStore struct {
	mu          sync.Mutex
	verifier    string
	hasVerifier bool
	values      map[CredentialField]string
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: make(map[CredentialField]string)}
}

// PutVerifier records the outstanding code verifier, evicting any prior one.
func (s *MemoryCredentialStore) PutVerifier(verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = verifier
	s.hasVerifier = true
	return nil
}

// TakeVerifier returns the outstanding verifier and deletes it. The second
// return reports whether one was present.
func (s *MemoryCredentialStore) TakeVerifier() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasVerifier {
		return "", false
	}
	v := s.verifier
	s.verifier = ""
	s.hasVerifier = false
	return v, true
}

// ClearSession discards the session scope.
func (s *MemoryCredentialStore) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = ""
	s.hasVerifier = false
}

// Set stores a persistent credential value.
func (s *MemoryCredentialStore) Set(field CredentialField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = value
	return nil
}

// Get reads a persistent credential value.
func (s *MemoryCredentialStore) Get(field CredentialField) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ClearAll removes every persistent slot.
func (s *MemoryCredentialStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, field := range persistentFields {
		delete(s.values, field)
	}
	return nil
}
