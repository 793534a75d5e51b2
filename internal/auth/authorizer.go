package auth

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// reloadDelay is how long the 401 teardown waits before invoking the reload
// hook, leaving time for the expiry notice to reach the user first.
const reloadDelay = 1500 * time.Millisecond

// Authorizer selects the credential attached to outbound backend requests
// and reacts to authorization failures. The API key takes precedence over
// the access token because it is long-lived and backend-revocable.
type Authorizer struct {
	store CredentialStore

	notify func(message string)
	reload func()
	delay  time.Duration
}

// NewAuthorizer creates an authorizer over the given store. Notices default
// to log output; the reload hook defaults to none.
func NewAuthorizer(store CredentialStore) *Authorizer {
	return &Authorizer{
		store:  store,
		notify: func(message string) { log.Warn(message) },
		delay:  reloadDelay,
	}
}

// OnNotice installs the handler for user-visible request notices.
func (a *Authorizer) OnNotice(fn func(message string)) {
	if fn != nil {
		a.notify = fn
	}
}

// OnReload installs the hook scheduled after a forced logout, returning the
// user to the unauthenticated flow.
func (a *Authorizer) OnReload(fn func()) {
	a.reload = fn
}

// ActiveCredential resolves the credential for outbound requests: the API
// key if present, else the access token, else none.
func (a *Authorizer) ActiveCredential() (string, bool) {
	if key, ok := a.store.Get(FieldAPIKey); ok {
		return key, true
	}
	if token, ok := a.store.Get(FieldAccessToken); ok {
		return token, true
	}
	return "", false
}

// Transport wraps base with credential injection and response policy. A nil
// base uses http.DefaultTransport.
func (a *Authorizer) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{base: base, authorizer: a}
}

// authTransport is the outbound interceptor: it attaches the active
// credential as a bearer header and applies the response policy. A 401
// invalidates the session (forced logout plus a delayed reload); any other
// non-success status and transport errors surface as notices without
// touching persisted state.
type authTransport struct {
	base       http.RoundTripper
	authorizer *Authorizer
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	outbound := req.Clone(req.Context())
	if credential, ok := t.authorizer.ActiveCredential(); ok {
		outbound.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := t.base.RoundTrip(outbound)
	if err != nil {
		t.authorizer.notify("Network error. Check your connection.")
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		t.authorizer.notify("Session expired. Please sign in again.")
		t.authorizer.teardown()
	case resp.StatusCode >= http.StatusBadRequest:
		t.authorizer.notify("Request failed: " + resp.Status)
	}

	return resp, nil
}

// teardown clears all persisted credentials and schedules the reload hook.
// This is the only error path allowed to mutate credential state outside the
// login/logout entry points.
func (a *Authorizer) teardown() {
	if err := a.store.ClearAll(); err != nil {
		log.Errorf("failed to clear credentials after 401: %v", err)
	}
	if a.reload != nil {
		time.AfterFunc(a.delay, a.reload)
	}
}
