package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/justlog-io/justlog-cli/internal/config"
	"github.com/justlog-io/justlog-cli/internal/misc"
	"github.com/justlog-io/justlog-cli/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// tokenSet holds the credentials returned by the authorization-code
// exchange.
type tokenSet struct {
	IdentityToken string
	AccessToken   string
	RefreshToken  string
}

// Flow drives the PKCE authorization-code login: building the authorization
// URL, completing the callback exchange, and persisting the resulting
// tokens. All failures reduce to "login did not complete"; callers only see
// a boolean.
type Flow struct {
	cfg        *config.Config
	store      CredentialStore
	exchanger  *KeyExchanger
	httpClient *http.Client

	// dispatch runs the detached API-key upgrade. The login result never
	// joins it; tests substitute a synchronous runner.
	dispatch func(func())
}

// NewFlow creates a login flow over the given store. The exchanger may be
// nil, in which case the post-login API-key upgrade is skipped.
func NewFlow(cfg *config.Config, store CredentialStore, exchanger *KeyExchanger) *Flow {
	return &Flow{
		cfg:        cfg,
		store:      store,
		exchanger:  exchanger,
		httpClient: util.SetProxy(cfg, &http.Client{}),
		dispatch:   func(fn func()) { go fn() },
	}
}

// BeginLogin generates a fresh PKCE pair, records the verifier as the single
// outstanding login attempt (evicting any earlier one), and returns the
// authorization URL the user agent must visit. The earlier attempt's
// callback, if it ever arrives, fails closed because its verifier is gone.
func (f *Flow) BeginLogin() (string, error) {
	pkceCodes, err := GeneratePKCECodes()
	if err != nil {
		return "", fmt.Errorf("pkce generation failed: %w", err)
	}

	if err = f.store.PutVerifier(pkceCodes.CodeVerifier); err != nil {
		return "", fmt.Errorf("failed to record code verifier: %w", err)
	}

	params := url.Values{
		"client_id":             {f.cfg.Auth.ClientID},
		"response_type":         {"code"},
		"scope":                 {f.cfg.Auth.Scopes},
		"redirect_uri":          {f.cfg.RedirectURI()},
		"code_challenge_method": {"S256"},
		"code_challenge":        {pkceCodes.CodeChallenge},
		"identity_provider":     {f.cfg.Auth.IdentityProvider},
	}

	return fmt.Sprintf("%s/oauth2/authorize?%s", f.cfg.Auth.Domain, params.Encode()), nil
}

// CompleteCallback consumes the identity provider's redirect. It parses the
// authorization code from the callback URL, takes (and thereby invalidates)
// the outstanding verifier, exchanges the code for tokens, and persists
// them. It returns false on any failure: missing code, missing verifier
// (replay, evicted attempt, or direct navigation), or a failed exchange.
//
// Tokens are persisted before this method returns true and before the
// API-key upgrade is dispatched; the upgrade runs detached and its outcome
// never affects the reported result.
func (f *Flow) CompleteCallback(ctx context.Context, callbackURL string) bool {
	callback, err := misc.ParseOAuthCallback(callbackURL)
	if err != nil || callback == nil {
		log.Debugf("not a login callback: %v", err)
		return false
	}
	if callback.Error != "" {
		log.Errorf("authorization failed: %s %s", callback.Error, callback.ErrorDescription)
		return false
	}

	verifier, ok := f.store.TakeVerifier()
	if !ok {
		log.Warn("login callback received with no outstanding verifier")
		return false
	}

	tokens, err := f.exchangeCode(ctx, callback.Code, verifier)
	if err != nil {
		log.Errorf("token exchange failed: %v", err)
		return false
	}

	if err = f.store.Set(FieldIdentityToken, tokens.IdentityToken); err != nil {
		log.Errorf("failed to persist identity token: %v", err)
		return false
	}
	if err = f.store.Set(FieldAccessToken, tokens.AccessToken); err != nil {
		log.Errorf("failed to persist access token: %v", err)
		return false
	}
	if tokens.RefreshToken != "" {
		if err = f.store.Set(FieldRefreshToken, tokens.RefreshToken); err != nil {
			log.Errorf("failed to persist refresh token: %v", err)
			return false
		}
	}

	if f.exchanger != nil {
		accessToken := tokens.AccessToken
		f.dispatch(func() {
			f.exchanger.Exchange(context.Background(), accessToken)
		})
	}

	return true
}

// exchangeCode performs the authorization-code grant against the identity
// provider's token endpoint.
func (f *Flow) exchangeCode(ctx context.Context, code, verifier string) (*tokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", f.cfg.Auth.ClientID)
	data.Set("code", code)
	data.Set("redirect_uri", f.cfg.RedirectURI())
	data.Set("code_verifier", verifier)

	endpoint := f.cfg.Auth.Domain + "/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	idToken := gjson.GetBytes(body, "id_token").String()
	accessToken := gjson.GetBytes(body, "access_token").String()
	if idToken == "" || accessToken == "" {
		return nil, fmt.Errorf("token response missing id_token or access_token")
	}

	return &tokenSet{
		IdentityToken: idToken,
		AccessToken:   accessToken,
		RefreshToken:  gjson.GetBytes(body, "refresh_token").String(),
	}, nil
}
