package graph

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAuthority = "https://login.microsoftonline.com"
	DefaultBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultScope     = "https://graph.microsoft.com/.default"
)

// Credentials identify an app registration using the client credentials grant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Authority    string
	Scopes       []string
}

// NewHTTPClient returns a client that attaches and refreshes bearer tokens.
func NewHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration) (*http.Client, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("graph credentials incomplete: tenant, client id and secret are required")
	}
	authority := creds.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     strings.TrimRight(authority, "/") + "/" + creds.TenantID + "/oauth2/v2.0/token",
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tokenClient := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, tokenClient)

	client := cfg.Client(ctx)
	client.Timeout = timeout
	return client, nil
}
