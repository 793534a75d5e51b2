package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/justlog-io/justlog-cli/internal/misc"
)

// credentialFileName is the JSON file holding the persistent scope under the
// auth directory.
const credentialFileName = "credentials.json"

// credentialFile is the on-disk shape of the persistent scope.
type credentialFile struct {
	IdentityToken string `json:"id_token,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
}

// FileCredentialStore persists the four credential slots as a JSON file with
// owner-only permissions. The PKCE verifier is session-scoped and therefore
// lives only in process memory; it never reaches disk.
type FileCredentialStore struct {
	mu          sync.Mutex
	path        string
	verifier    string
	hasVerifier bool
}

// NewFileCredentialStore creates a store rooted at the given auth directory.
func NewFileCredentialStore(authDir string) *FileCredentialStore {
	return &FileCredentialStore{path: filepath.Join(authDir, credentialFileName)}
}

// PutVerifier records the outstanding code verifier, evicting any prior one.
func (s *FileCredentialStore) PutVerifier(verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = verifier
	s.hasVerifier = true
	return nil
}

// TakeVerifier returns the outstanding verifier and deletes it.
func (s *FileCredentialStore) TakeVerifier() (string, bool) {
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
func (s *FileCredentialStore) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = ""
	s.hasVerifier = false
}

// Set writes one persistent slot and saves the file.
func (s *FileCredentialStore) Set(field CredentialField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	if err = setField(creds, field, value); err != nil {
		return err
	}
	return s.save(creds)
}

// Get reads one persistent slot. The file is re-read on every call so that
// concurrent invocations observe each other's writes.
func (s *FileCredentialStore) Get(field CredentialField) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return "", false
	}
	v := getField(creds, field)
	if v == "" {
		return "", false
	}
	return v, true
}

// ClearAll removes the credentials file, clearing all four slots at once.
// Removing an absent file is not an error, so the operation is idempotent.
func (s *FileCredentialStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth filestore: clear failed: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) load() (*credentialFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &credentialFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth filestore: read failed: %w", err)
	}
	var creds credentialFile
	if err = json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("auth filestore: parse failed: %w", err)
	}
	return &creds, nil
}

func (s *FileCredentialStore) save(creds *credentialFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("auth filestore: create dir failed: %w", err)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("auth filestore: marshal failed: %w", err)
	}
	if err = os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("auth filestore: write failed: %w", err)
	}
	misc.LogSavingCredentials(s.path)
	return nil
}

func setField(creds *credentialFile, field CredentialField, value string) error {
	switch field {
	case FieldIdentityToken:
		creds.IdentityToken = value
	case FieldAccessToken:
		creds.AccessToken = value
	case FieldRefreshToken:
		creds.RefreshToken = value
	case FieldAPIKey:
		creds.APIKey = value
	default:
		return fmt.Errorf("auth filestore: unknown credential field %q", field)
	}
	return nil
}

func getField(creds *credentialFile, field CredentialField) string {
	switch field {
	case FieldIdentityToken:
		return creds.IdentityToken
	case FieldAccessToken:
		return creds.AccessToken
	case FieldRefreshToken:
		return creds.RefreshToken
	case FieldAPIKey:
		return creds.APIKey
	}
	return ""
}
