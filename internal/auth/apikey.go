package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/justlog-io/justlog-cli/internal/config"
	"github.com/justlog-io/justlog-cli/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// KeyExchanger trades a valid access token for a long-lived opaque API key
// and manages issued keys through the backend's /api/token endpoints.
type KeyExchanger struct {
	cfg        *config.Config
	store      CredentialStore
	authorizer *Authorizer
	httpClient *http.Client
}

// KeySummary describes one issued API key as listed by the backend.
type KeySummary struct {
	ID        string `json:"key_id"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

// CreatedKey holds a freshly issued key. The raw key value is only ever
// returned at creation time.
type CreatedKey struct {
	ID     string
	APIKey string
}

// NewKeyExchanger creates an exchanger over the given store. The authorizer
// supplies the active credential for the key management operations.
func NewKeyExchanger(cfg *config.Config, store CredentialStore, authorizer *Authorizer) *KeyExchanger {
	return &KeyExchanger{
		cfg:        cfg,
		store:      store,
		authorizer: authorizer,
		httpClient: util.SetProxy(cfg, &http.Client{}),
	}
}

// Exchange posts the access token to the key-issuance endpoint and persists
// the returned API key. It is best-effort by contract: on any failure the
// stored key is left untouched and the error is only logged, because the
// access token remains a usable fallback credential.
func (e *KeyExchanger) Exchange(ctx context.Context, accessToken string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.APIBaseURL+"/api/token", nil)
	if err != nil {
		log.Warnf("api key exchange skipped: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Warnf("api key exchange failed: %v", err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("api key exchange failed: %v", err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		log.Warnf("api key exchange failed with status %d: %s", resp.StatusCode, string(body))
		return
	}

	apiKey := gjson.GetBytes(body, "api_key").String()
	if apiKey == "" {
		log.Warn("api key exchange returned no key")
		return
	}

	if err = e.store.Set(FieldAPIKey, apiKey); err != nil {
		log.Warnf("failed to persist api key: %v", err)
		return
	}
	log.Debug("api key obtained and stored")
}

// ListKeys fetches the issued keys for the current user. It fails closed,
// returning an empty list on any transport or status error.
func (e *KeyExchanger) ListKeys(ctx context.Context) []KeySummary {
	body, ok := e.doAuthorized(ctx, http.MethodGet, "/api/token", "")
	if !ok {
		return nil
	}

	var keys []KeySummary
	for _, item := range gjson.ParseBytes(body).Array() {
		keys = append(keys, KeySummary{
			ID:        item.Get("key_id").String(),
			Label:     item.Get("label").String(),
			CreatedAt: item.Get("created_at").String(),
		})
	}
	return keys
}

// CreateKey issues a new API key with the given label. An empty label gets a
// generated one so every key stays identifiable in listings. Fails closed.
func (e *KeyExchanger) CreateKey(ctx context.Context, label string) (*CreatedKey, bool) {
	if strings.TrimSpace(label) == "" {
		label = "cli-" + uuid.NewString()[:8]
	}

	payload, err := sjson.Set("{}", "label", label)
	if err != nil {
		log.Errorf("failed to build key request: %v", err)
		return nil, false
	}

	body, ok := e.doAuthorized(ctx, http.MethodPost, "/api/token", payload)
	if !ok {
		return nil, false
	}

	created := &CreatedKey{
		ID:     gjson.GetBytes(body, "key_id").String(),
		APIKey: gjson.GetBytes(body, "api_key").String(),
	}
	if created.APIKey == "" {
		log.Error("key creation returned no key")
		return nil, false
	}
	return created, true
}

// RevokeKey deletes the key with the given id. Fails closed.
func (e *KeyExchanger) RevokeKey(ctx context.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	_, ok := e.doAuthorized(ctx, http.MethodDelete, "/api/token?id="+url.QueryEscape(id), "")
	return ok
}

// doAuthorized performs a key-management request with the active credential
// attached, reducing every failure to a single "not ok" outcome.
func (e *KeyExchanger) doAuthorized(ctx context.Context, method, path, payload string) ([]byte, bool) {
	credential, ok := e.authorizer.ActiveCredential()
	if !ok {
		log.Debug("key management request skipped: not logged in")
		return nil, false
	}

	var reqBody io.Reader
	if payload != "" {
		reqBody = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.cfg.APIBaseURL+path, reqBody)
	if err != nil {
		log.Errorf("failed to create key management request: %v", err)
		return nil, false
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Errorf("key management request failed: %v", err)
		return nil, false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("failed to read key management response: %v", err)
		return nil, false
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Errorf("key management request failed with status %d: %s", resp.StatusCode, string(body))
		return nil, false
	}
	return body, true
}
