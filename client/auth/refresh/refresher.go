package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/schema"
	"golang.org/x/oauth2"
)

const (
	XSRFCookie = "XSRF-TOKEN"
	XSRFHeader = "X-XSRF-TOKEN"
)

// Refresher obtains a new credential record. current is the record held by the vault, possibly nil.
type Refresher interface {
	Refresh(ctx context.Context, current *vault.Record) (*vault.Record, error)
}

// Func adapts a function to Refresher.
type Func func(ctx context.Context, current *vault.Record) (*vault.Record, error)

func (f Func) Refresh(ctx context.Context, current *vault.Record) (*vault.Record, error) {
	return f(ctx, current)
}

// EndpointRefresher calls the API refresh endpoint. The session cookie travels in the client's jar;
// a stored refresh token, if any, is sent in the body.
type EndpointRefresher struct {
	URL    string
	client *http.Client
}

// NewEndpointRefresher creates a refresher posting to URL. The client must not carry the auth
// transport, otherwise a rejected refresh would recurse.
func NewEndpointRefresher(URL string, client *http.Client) *EndpointRefresher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &EndpointRefresher{URL: URL, client: client}
}

type refreshPayload struct {
	Token        string             `json:"token"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
	User         *vault.UserProfile `json:"user"`
}

func (e *EndpointRefresher) Refresh(ctx context.Context, current *vault.Record) (*vault.Record, error) {
	var body io.Reader = http.NoBody
	if current != nil && current.RefreshToken != "" {
		data, err := json.Marshal(map[string]string{"refreshToken": current.RefreshToken})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.client.Jar != nil {
		for _, cookie := range e.client.Jar.Cookies(req.URL) {
			if cookie.Name == XSRFCookie {
				req.Header.Set(XSRFHeader, cookie.Value)
			}
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}
	response := schema.NewResponse(resp.StatusCode, resp.Header, data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, schema.NewStatusError(response)
	}
	payload := &refreshPayload{}
	if err = response.Decode(payload); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" {
		token = strings.TrimSpace(payload.AccessToken)
	}
	if token == "" {
		return nil, fmt.Errorf("refresh response carried no token")
	}
	ret := &vault.Record{Token: token, User: payload.User, RefreshToken: payload.RefreshToken}
	if current != nil {
		if ret.User == nil {
			ret.User = current.User
		}
		if ret.RefreshToken == "" {
			ret.RefreshToken = current.RefreshToken
		}
	}
	return ret, nil
}

// OAuth2Refresher exchanges the stored refresh token at an OAuth2 token endpoint.
type OAuth2Refresher struct {
	config *oauth2.Config
}

func NewOAuth2Refresher(config *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{config: config}
}

func (o *OAuth2Refresher) Refresh(ctx context.Context, current *vault.Record) (*vault.Record, error) {
	if o.config == nil {
		return nil, fmt.Errorf("oauth2 config was empty")
	}
	if current == nil || strings.TrimSpace(current.RefreshToken) == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	// expired on purpose so that the token source always goes to the token endpoint
	cached := &oauth2.Token{AccessToken: current.Token, RefreshToken: current.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	refreshed, err := o.config.TokenSource(ctx, cached).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	ret := &vault.Record{Token: refreshed.AccessToken, User: current.User, RefreshToken: refreshed.RefreshToken}
	// preserve refresh token if provider omitted it
	if ret.RefreshToken == "" {
		ret.RefreshToken = current.RefreshToken
	}
	return ret, nil
}
