// Package api implements the authenticated client for the JustLog backend's
// data endpoints. Reads fail to empty results rather than errors, so
// presentation code never branches on transport failures.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/justlog-io/justlog-cli/internal/auth"
	"github.com/justlog-io/justlog-cli/internal/config"
	"github.com/justlog-io/justlog-cli/internal/util"
	log "github.com/sirupsen/logrus"
)

// dateFormat is the layout the backend accepts for range boundaries.
const dateFormat = "2006-01-02"

// Entry is one logged record (food, exercise, or weight). This is the
// canonical schema; fields not relevant to an entry type are zero.
type Entry struct {
	SK          string  `json:"sk"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	Fiber       float64 `json:"fiber"`
	Caffeine    float64 `json:"caffeine"`
	Cholesterol float64 `json:"cholesterol"`
	Duration    float64 `json:"duration"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Notes       string  `json:"notes"`
	CreatedAt   string  `json:"created_at"`
}

// Client calls the backend data endpoints with the active credential
// attached by the authorizer's transport.
type Client struct {
	baseURL    string
	authorizer *auth.Authorizer
	httpClient *http.Client
}

// NewClient creates a backend client. All requests flow through the
// authorizer's transport, which injects the bearer credential and applies
// the 401 teardown policy.
func NewClient(cfg *config.Config, authorizer *auth.Authorizer) *Client {
	base := util.SetProxy(cfg, &http.Client{}).Transport
	return &Client{
		baseURL:    cfg.APIBaseURL,
		authorizer: authorizer,
		httpClient: &http.Client{Transport: authorizer.Transport(base)},
	}
}

// GetEntries fetches entries of the given type within [from, to]. Dates use
// the 2006-01-02 layout; empty boundaries are omitted and default server
// side to today. It returns an empty list when unauthenticated or on any
// fetch failure.
func (c *Client) GetEntries(ctx context.Context, entryType, from, to string) []Entry {
	if _, ok := c.authorizer.ActiveCredential(); !ok {
		return nil
	}

	params := url.Values{}
	params.Set("type", entryType)
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/entries?"+params.Encode(), nil)
	if err != nil {
		log.Errorf("failed to create entries request: %v", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("entries request failed: %v", err)
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var entries []Entry
	if err = json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		log.Debugf("failed to decode entries response: %v", err)
		return nil
	}
	return entries
}

// TodayRange returns the from/to strings covering the given day, the
// default dashboard window.
func TodayRange(now time.Time) (string, string) {
	day := now.UTC().Format(dateFormat)
	return day, day
}
