package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"
)

func newTestExchanger(apiBase string, store CredentialStore) (*KeyExchanger, *Authorizer) {
	cfg := testConfig("https://idp.example.com", apiBase)
	authorizer := NewAuthorizer(store)
	return NewKeyExchanger(cfg, store, authorizer), authorizer
}

func TestExchangePersistsKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer AT1" {
			t.Errorf("Authorization = %q, want Bearer AT1", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"api_key": "K1", "key_id": "id1"})
	}))
	defer server.Close()

	store := NewMemoryCredentialStore()
	exchanger, _ := newTestExchanger(server.URL, store)
	exchanger.Exchange(context.Background(), "AT1")

	if got, ok := store.Get(FieldAPIKey); !ok || got != "K1" {
		t.Errorf("stored api key = (%q, %v), want (K1, true)", got, ok)
	}
}

func TestExchangeFailureLeavesKeyUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed response", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"unexpected":"shape"}`)
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			store := NewMemoryCredentialStore()
			_ = store.Set(FieldAPIKey, "existing")
			exchanger, _ := newTestExchanger(server.URL, store)

			exchanger.Exchange(context.Background(), "AT1")

			if got, ok := store.Get(FieldAPIKey); !ok || got != "existing" {
				t.Errorf("api key after failed exchange = (%q, %v), want existing value kept", got, ok)
			}
		})
	}
}

func TestListKeys(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer K1" {
			t.Errorf("Authorization = %q, want Bearer K1", got)
		}
		_, _ = io.WriteString(w, `[{"key_id":"id1","label":"laptop","created_at":"2026-08-01T00:00:00Z"},{"key_id":"id2","label":"phone","created_at":"2026-08-02T00:00:00Z"}]`)
	}))
	defer server.Close()

	store := NewMemoryCredentialStore()
	_ = store.Set(FieldAPIKey, "K1")
	exchanger, _ := newTestExchanger(server.URL, store)

	keys := exchanger.ListKeys(context.Background())
	if len(keys) != 2 {
		t.Fatalf("ListKeys returned %d keys, want 2", len(keys))
	}
	if keys[0].ID != "id1" || keys[0].Label != "laptop" {
		t.Errorf("unexpected first key: %+v", keys[0])
	}
}

func TestKeyManagementFailsClosedWhenLoggedOut(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	exchanger, _ := newTestExchanger(server.URL, NewMemoryCredentialStore())
	ctx := context.Background()

	if keys := exchanger.ListKeys(ctx); keys != nil {
		t.Errorf("ListKeys while logged out = %v, want nil", keys)
	}
	if _, ok := exchanger.CreateKey(ctx, "label"); ok {
		t.Error("CreateKey while logged out succeeded")
	}
	if exchanger.RevokeKey(ctx, "id1") {
		t.Error("RevokeKey while logged out succeeded")
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("backend called %d times while logged out, want 0", got)
	}
}

func TestCreateKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got := gjson.GetBytes(body, "label").String(); got != "laptop" {
			t.Errorf("label = %q, want laptop", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"api_key": "K-new", "key_id": "id9"})
	}))
	defer server.Close()

	store := memoryStoreWithAccessToken()
	exchanger, _ := newTestExchanger(server.URL, store)

	created, ok := exchanger.CreateKey(context.Background(), "laptop")
	if !ok {
		t.Fatal("CreateKey failed")
	}
	if created.ID != "id9" || created.APIKey != "K-new" {
		t.Errorf("unexpected created key: %+v", created)
	}
}

// memoryStoreWithAccessToken returns a store holding only an access token.
func memoryStoreWithAccessToken() *MemoryCredentialStore {
	store := NewMemoryCredentialStore()
	_ = store.Set(FieldAccessToken, "AT1")
	return store
}

func TestCreateKeyDefaultsLabel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "label").String() == "" {
			t.Error("empty label was not defaulted")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"api_key": "K-new", "key_id": "id9"})
	}))
	defer server.Close()

	exchanger, _ := newTestExchanger(server.URL, memoryStoreWithAccessToken())
	if _, ok := exchanger.CreateKey(context.Background(), "  "); !ok {
		t.Fatal("CreateKey failed")
	}
}

func TestRevokeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		id     string
		want   bool
	}{
		{"success", http.StatusOK, "id1", true},
		{"not found", http.StatusNotFound, "id1", false},
		{"empty id", http.StatusOK, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("method = %s, want DELETE", r.Method)
				}
				if got := r.URL.Query().Get("id"); got != tt.id {
					t.Errorf("id = %q, want %q", got, tt.id)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			exchanger, _ := newTestExchanger(server.URL, memoryStoreWithAccessToken())
			if got := exchanger.RevokeKey(context.Background(), tt.id); got != tt.want {
				t.Errorf("RevokeKey = %v, want %v", got, tt.want)
			}
		})
	}
}
