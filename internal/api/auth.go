package api

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoCredentials indicates that neither a static token nor client
// credentials were configured.
var ErrNoCredentials = errors.New("api: no credentials configured")

// StaticTokenSource returns a TokenSource that always yields the given token.
// Used for development setups and personal access tokens.
func StaticTokenSource(token string) TokenSource {
	return staticToken(token)
}

type staticToken string

func (t staticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoCredentials
	}

	return string(t), nil
}

// oauthTokenSource adapts an oauth2.TokenSource (which caches and refreshes
// tokens internally) to the client's TokenSource interface.
type oauthTokenSource struct {
	src oauth2.TokenSource
}

func (s *oauthTokenSource) Token() (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		return "", fmt.Errorf("api: obtaining access token: %w", err)
	}

	return tok.AccessToken, nil
}

// ClientCredentialsSource returns a TokenSource backed by the OAuth2 client
// credentials grant. The returned source caches tokens and refreshes them
// before expiry; ctx bounds the token endpoint requests.
func ClientCredentialsSource(ctx context.Context, tokenURL, clientID, clientSecret string) TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	return &oauthTokenSource{src: cfg.TokenSource(ctx)}
}
