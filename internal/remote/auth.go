package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoCredentials is returned when neither an access token nor client
// credentials are configured.
var ErrNoCredentials = errors.New("no remote credentials configured")

// Credentials authenticate requests. AccessToken wins when set; otherwise the
// client-credentials grant is used against TokenURL.
type Credentials struct {
	AccessToken  string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Empty reports whether no usable credential is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && (c.ClientID == "" || c.ClientSecret == "" || c.TokenURL == "")
}

// NewHTTPClient returns an HTTP client that attaches a bearer token to every
// request. The timeout applies to each request, including token refreshes.
func NewHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration) (*http.Client, error) {
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	var ts oauth2.TokenSource
	switch {
	case creds.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	case !creds.Empty():
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		}
		ts = cc.TokenSource(ctx)
	default:
		return nil, ErrNoCredentials
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client, nil
}
