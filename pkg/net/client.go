package net

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "riskctl"
)

var (
	reqTransport = &http.Transport{
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

// GetHTTPClient returns an anonymous client for public artifact registries.
func GetHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "error creating cookie jar")
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: reqTransport,
		Jar:       jar,
	}, nil
}

// GetOAuthClient returns a client that sends token as a bearer token on every request.
func GetOAuthClient(ctx context.Context, token string) *http.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		},
	)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: reqTransport,
	})
	return oauth2.NewClient(ctx, ts)
}

// GetClient returns the OAuth client when a token is set, the anonymous one otherwise.
func GetClient(ctx context.Context, token string) (*http.Client, error) {
	if token == "" {
		return GetHTTPClient()
	}
	return GetOAuthClient(ctx, token), nil
}
