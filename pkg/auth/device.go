// Package auth implements the OAuth 2.0 device authorization flow against an artifact registry.
package auth

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Endpoint describes the registry's device flow.
type Endpoint struct {
	ClientID  string   `json:"client_id" yaml:"client_id"`
	DeviceURL string   `json:"device_url" yaml:"device_url"`
	TokenURL  string   `json:"token_url" yaml:"token_url"`
	Scopes    []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Validate checks that the endpoint can start a device flow.
func (e Endpoint) Validate() error {
	if e.ClientID == "" {
		return errors.New("client ID is required")
	}
	if e.DeviceURL == "" || e.TokenURL == "" {
		return errors.New("device and token URLs are required")
	}
	return nil
}

func (e Endpoint) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: e.ClientID,
		Scopes:   e.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: e.DeviceURL,
			TokenURL:      e.TokenURL,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// GetDeviceCode requests the user and device codes. c is used for the request when set.
func GetDeviceCode(ctx context.Context, c *http.Client, e Endpoint) (*oauth2.DeviceAuthResponse, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	code, err := e.config().DeviceAuth(withClient(ctx, c))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get device code")
	}
	return code, nil
}

// GetToken polls the token endpoint until the user approves the device, the code expires or ctx is done.
func GetToken(ctx context.Context, c *http.Client, e Endpoint, code *oauth2.DeviceAuthResponse) (*oauth2.Token, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if code == nil {
		return nil, errors.New("device code is nil")
	}

	t, err := e.config().DeviceAccessToken(withClient(ctx, c), code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get access token")
	}
	if t.AccessToken == "" {
		return nil, errors.New("access token is empty")
	}
	return t, nil
}

func withClient(ctx context.Context, c *http.Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}
